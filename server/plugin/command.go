package plugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
)

const helpText = "###### Review Tracker - Slash Command Help\n" +
	"* `/reviewtracker route add <team-slug>` - Announce review requests for the GitHub team in this channel\n" +
	"* `/reviewtracker route remove <team-slug>` - Stop announcing the team's review requests in this channel\n" +
	"* `/reviewtracker route list` - List the team routes\n" +
	"* `/reviewtracker map <github-username>` - Link your Mattermost account to a GitHub username\n" +
	"* `/reviewtracker unmap <github-username>` - Remove the link to a GitHub username\n"

func (p *Plugin) getCommand() *model.Command {
	return &model.Command{
		Trigger:          "reviewtracker",
		AutoComplete:     true,
		AutoCompleteDesc: "Available commands: route, map, unmap, help",
		AutoCompleteHint: "[command]",
		AutocompleteData: getAutocompleteData(),
	}
}

func getAutocompleteData() *model.AutocompleteData {
	reviewtracker := model.NewAutocompleteData("reviewtracker", "[command]", "Available commands: route, map, unmap, help")

	route := model.NewAutocompleteData("route", "[action]", "Manage team to channel routes")
	routeAdd := model.NewAutocompleteData("add", "[team-slug]", "Announce review requests for the GitHub team in this channel")
	routeAdd.AddTextArgument("GitHub team slug", "[team-slug]", "")
	route.AddCommand(routeAdd)
	routeRemove := model.NewAutocompleteData("remove", "[team-slug]", "Stop announcing the team's review requests in this channel")
	routeRemove.AddTextArgument("GitHub team slug", "[team-slug]", "")
	route.AddCommand(routeRemove)
	route.AddCommand(model.NewAutocompleteData("list", "", "List the team routes"))
	reviewtracker.AddCommand(route)

	mapCmd := model.NewAutocompleteData("map", "[github-username]", "Link your Mattermost account to a GitHub username")
	mapCmd.AddTextArgument("GitHub username", "[github-username]", "")
	reviewtracker.AddCommand(mapCmd)

	unmapCmd := model.NewAutocompleteData("unmap", "[github-username]", "Remove the link to a GitHub username")
	unmapCmd.AddTextArgument("GitHub username", "[github-username]", "")
	reviewtracker.AddCommand(unmapCmd)

	reviewtracker.AddCommand(model.NewAutocompleteData("help", "", "Display usage"))

	return reviewtracker
}

func (p *Plugin) postCommandResponse(args *model.CommandArgs, text string) {
	post := &model.Post{
		UserId:    p.BotUserID,
		ChannelId: args.ChannelId,
		RootId:    args.RootId,
		Message:   text,
	}
	_ = p.API.SendEphemeralPost(args.UserId, post)
}

func (p *Plugin) ExecuteCommand(c *plugin.Context, args *model.CommandArgs) (*model.CommandResponse, *model.AppError) {
	split := strings.Fields(args.Command)
	if len(split) < 1 || split[0] != "/reviewtracker" {
		return &model.CommandResponse{}, nil
	}

	command := ""
	if len(split) > 1 {
		command = split[1]
	}
	parameters := split[2:]

	var response string
	switch command {
	case "route":
		response = p.handleRouteCommand(args, parameters)
	case "map":
		response = p.handleMapCommand(args, parameters)
	case "unmap":
		response = p.handleUnmapCommand(args, parameters)
	case "help", "":
		response = helpText
	default:
		response = fmt.Sprintf("Unknown command `%v`.\n%s", command, helpText)
	}

	p.postCommandResponse(args, response)
	return &model.CommandResponse{}, nil
}

func (p *Plugin) handleRouteCommand(args *model.CommandArgs, parameters []string) string {
	if len(parameters) == 0 {
		return "Invalid route command. Available commands are 'add', 'remove' and 'list'."
	}

	action := parameters[0]
	parameters = parameters[1:]

	switch action {
	case "add":
		if len(parameters) != 1 {
			return "Please specify a team slug: `/reviewtracker route add <team-slug>`"
		}
		teamSlug := parameters[0]

		if err := p.AddTeamRoute(teamSlug, args.ChannelId, args.UserId); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("Review requests for team `%s` will be announced in this channel.", strings.ToLower(teamSlug))
	case "remove":
		if len(parameters) != 1 {
			return "Please specify a team slug: `/reviewtracker route remove <team-slug>`"
		}
		teamSlug := parameters[0]

		removed, err := p.RemoveTeamRoute(teamSlug, args.ChannelId)
		if err != nil {
			return "Encountered an error trying to remove the route. Please try again."
		}
		if !removed {
			return fmt.Sprintf("Team `%s` is not routed to this channel.", strings.ToLower(teamSlug))
		}
		return fmt.Sprintf("Review requests for team `%s` will no longer be announced in this channel.", strings.ToLower(teamSlug))
	case "list":
		return p.handleRouteList()
	default:
		return "Invalid route command. Available commands are 'add', 'remove' and 'list'."
	}
}

func (p *Plugin) handleRouteList() string {
	routes, err := p.GetTeamRoutes()
	if err != nil {
		p.API.LogWarn("Failed to get team routes", "error", err.Error())
		return "Encountered an error trying to list the routes. Please try again."
	}

	if len(routes.Teams) == 0 {
		return "There are no team routes configured. Use `/reviewtracker route add <team-slug>` to add one."
	}

	teams := make([]string, 0, len(routes.Teams))
	for team := range routes.Teams {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	text := "### Team routes\n"
	for _, team := range teams {
		for _, route := range routes.Teams[team] {
			text += fmt.Sprintf("* `%s` → ~%s\n", team, route.ChannelID)
		}
	}
	return text
}

func (p *Plugin) handleMapCommand(args *model.CommandArgs, parameters []string) string {
	if len(parameters) != 1 {
		return "Please specify a GitHub username: `/reviewtracker map <github-username>`"
	}

	githubUsername := strings.TrimPrefix(parameters[0], "@")
	if githubUsername == "" {
		return "Invalid GitHub username."
	}

	if err := p.storeGitHubToUserIDMapping(githubUsername, args.UserId); err != nil {
		p.API.LogWarn("Failed to store username mapping", "github_username", githubUsername, "error", err.Error())
		return "Encountered an error saving the mapping. Please try again."
	}

	return fmt.Sprintf("Mapped GitHub user `%s` to your account.", githubUsername)
}

func (p *Plugin) handleUnmapCommand(args *model.CommandArgs, parameters []string) string {
	if len(parameters) != 1 {
		return "Please specify a GitHub username: `/reviewtracker unmap <github-username>`"
	}

	githubUsername := strings.TrimPrefix(parameters[0], "@")
	if p.getGitHubToUserIDMapping(githubUsername) != args.UserId {
		return fmt.Sprintf("GitHub user `%s` is not mapped to your account.", githubUsername)
	}

	if err := p.deleteGitHubToUserIDMapping(githubUsername); err != nil {
		p.API.LogWarn("Failed to delete username mapping", "github_username", githubUsername, "error", err.Error())
		return "Encountered an error removing the mapping. Please try again."
	}

	return fmt.Sprintf("Removed the mapping for GitHub user `%s`.", githubUsername)
}
