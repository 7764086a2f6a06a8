package plugin

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const routesKey = "team_routes"

// TeamRoute maps one GitHub team to one channel its review requests are
// announced in. A team may be routed to several channels and a channel may
// serve several teams.
type TeamRoute struct {
	ChannelID string `json:"channel_id"`
	CreatorID string `json:"creator_id"`
}

type TeamRoutes struct {
	Teams map[string][]*TeamRoute `json:"teams"`
}

func (p *Plugin) GetTeamRoutes() (*TeamRoutes, error) {
	var routes *TeamRoutes

	value, appErr := p.API.KVGet(routesKey)
	if appErr != nil {
		return nil, errors.Wrap(appErr, "could not get team routes from KVStore")
	}

	if value == nil {
		return &TeamRoutes{Teams: map[string][]*TeamRoute{}}, nil
	}

	if err := json.Unmarshal(value, &routes); err != nil {
		return nil, errors.Wrap(err, "could not parse stored team routes")
	}
	if routes.Teams == nil {
		routes.Teams = map[string][]*TeamRoute{}
	}

	return routes, nil
}

func (p *Plugin) storeTeamRoutes(routes *TeamRoutes) error {
	b, err := json.Marshal(routes)
	if err != nil {
		return errors.Wrap(err, "error while converting team routes to json")
	}

	if appErr := p.API.KVSet(routesKey, b); appErr != nil {
		return errors.Wrap(appErr, "could not store team routes in KV store")
	}

	return nil
}

// AddTeamRoute routes a team slug to a channel. Adding an existing route is
// an error so the caller can report it.
func (p *Plugin) AddTeamRoute(teamSlug, channelID, creatorID string) error {
	teamSlug = strings.ToLower(strings.TrimSpace(teamSlug))
	if teamSlug == "" {
		return errors.New("invalid team slug")
	}

	routes, err := p.GetTeamRoutes()
	if err != nil {
		return err
	}

	for _, route := range routes.Teams[teamSlug] {
		if route.ChannelID == channelID {
			return errors.Errorf("team %s is already routed to this channel", teamSlug)
		}
	}

	routes.Teams[teamSlug] = append(routes.Teams[teamSlug], &TeamRoute{
		ChannelID: channelID,
		CreatorID: creatorID,
	})

	return p.storeTeamRoutes(routes)
}

// RemoveTeamRoute removes the route from a team slug to a channel, reporting
// whether it existed.
func (p *Plugin) RemoveTeamRoute(teamSlug, channelID string) (bool, error) {
	teamSlug = strings.ToLower(strings.TrimSpace(teamSlug))

	routes, err := p.GetTeamRoutes()
	if err != nil {
		return false, err
	}

	teamRoutes := routes.Teams[teamSlug]
	for i, route := range teamRoutes {
		if route.ChannelID != channelID {
			continue
		}

		routes.Teams[teamSlug] = append(teamRoutes[:i], teamRoutes[i+1:]...)
		if len(routes.Teams[teamSlug]) == 0 {
			delete(routes.Teams, teamSlug)
		}

		if err := p.storeTeamRoutes(routes); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

// ResolveChannelsForTeams returns the deduplicated channels the given team
// slugs are routed to.
func (p *Plugin) ResolveChannelsForTeams(teamSlugs []string) []string {
	routes, err := p.GetTeamRoutes()
	if err != nil {
		p.API.LogWarn("Failed to get team routes", "error", err.Error())
		return nil
	}

	seen := map[string]bool{}
	var channels []string
	for _, slug := range teamSlugs {
		for _, route := range routes.Teams[strings.ToLower(slug)] {
			if seen[route.ChannelID] {
				continue
			}
			seen[route.ChannelID] = true
			channels = append(channels, route.ChannelID)
		}
	}

	sort.Strings(channels)
	return channels
}
