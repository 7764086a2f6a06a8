package plugin

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/google/go-github/v54/github"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"
	"github.com/mattermost/mattermost/server/public/pluginapi"

	root "github.com/mattermost/mattermost-plugin-reviewtracker"
	"github.com/mattermost/mattermost-plugin-reviewtracker/server/tracker"
)

const (
	githubUsernameKey = "_githubusername"

	requestTimeout = 30 * time.Second
)

var (
	Manifest model.Manifest = root.Manifest
)

type Plugin struct {
	plugin.MattermostPlugin
	client *pluginapi.Client

	// configurationLock synchronizes access to the configuration.
	configurationLock sync.RWMutex

	// configuration is the active plugin configuration. Consult getConfiguration and
	// setConfiguration for usage.
	configuration *Configuration

	router *mux.Router

	BotUserID string

	tracker *tracker.Tracker
}

// NewPlugin returns an instance of a Plugin.
func NewPlugin() *Plugin {
	return &Plugin{}
}

func (p *Plugin) OnActivate() error {
	p.client = pluginapi.NewClient(p.API, p.Driver)

	if err := p.setDefaultConfiguration(); err != nil {
		return errors.Wrap(err, "failed to set default configuration")
	}

	p.initializeAPI()

	botID, err := p.client.Bot.EnsureBot(&model.Bot{
		OwnerId:     Manifest.Id,
		Username:    "reviewtracker",
		DisplayName: "Review Tracker",
		Description: "Created by the Review Tracker plugin.",
	})
	if err != nil {
		return errors.Wrap(err, "failed to ensure review tracker bot")
	}
	p.BotUserID = botID

	registerGitHubToUsernameMappingCallback(p.getGitHubToUsernameMapping)

	p.tracker = tracker.New(tracker.Deps{
		Store: tracker.NewKVStore(p.API, func() int64 {
			return p.getConfiguration().retentionSeconds()
		}),
		Reactor:   &postReactor{api: p.API, botUserID: botID},
		Locks:     tracker.NewMutexMap(),
		Announcer: p,
		Resolver:  p,
		RequiredApprovals: func(repoFullName string) int {
			return p.getConfiguration().RequiredApprovals(repoFullName)
		},
		Log: p.API,
	})

	return nil
}

// githubClient returns a client for the configured service token, or nil when
// no token is configured. It is only used to enrich announcements; the
// reconciliation engine itself never calls GitHub.
func (p *Plugin) githubClient() *github.Client {
	config := p.getConfiguration()
	if config.GitHubToken == "" {
		return nil
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.GitHubToken})
	tc := oauth2.NewClient(context.Background(), ts)

	if config.EnterpriseBaseURL == "" {
		return github.NewClient(tc)
	}

	baseURL, _ := url.Parse(config.EnterpriseBaseURL)
	baseURL.Path = path.Join(baseURL.Path, "api", "v3")

	client, err := github.NewEnterpriseClient(baseURL.String(), baseURL.String(), tc)
	if err != nil {
		p.API.LogWarn("Failed to create GitHub Enterprise client", "error", err.Error())
		return nil
	}

	return client
}

func (p *Plugin) checkOrg(org string) error {
	configOrg := p.getConfiguration().GitHubOrg
	if configOrg != "" && configOrg != org {
		return errors.Errorf("only repositories in the %v organization are supported", configOrg)
	}

	return nil
}

func (p *Plugin) storeGitHubToUserIDMapping(githubUsername, userID string) error {
	if appErr := p.API.KVSet(githubUsername+githubUsernameKey, []byte(userID)); appErr != nil {
		return errors.Wrap(appErr, "encountered error saving github username mapping")
	}
	return nil
}

func (p *Plugin) deleteGitHubToUserIDMapping(githubUsername string) error {
	if appErr := p.API.KVDelete(githubUsername + githubUsernameKey); appErr != nil {
		return errors.Wrap(appErr, "encountered error deleting github username mapping")
	}
	return nil
}

func (p *Plugin) getGitHubToUserIDMapping(githubUsername string) string {
	userID, _ := p.API.KVGet(githubUsername + githubUsernameKey)
	return string(userID)
}

// getGitHubToUsernameMapping maps a GitHub username to the corresponding Mattermost username, if any.
func (p *Plugin) getGitHubToUsernameMapping(githubUsername string) string {
	user, _ := p.API.GetUser(p.getGitHubToUserIDMapping(githubUsername))
	if user == nil {
		return ""
	}

	return user.Username
}

func (p *Plugin) ServeHTTP(c *plugin.Context, w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}
