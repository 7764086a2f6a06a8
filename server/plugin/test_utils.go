package plugin

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505
	"encoding/hex"
	"fmt"

	"github.com/google/go-github/v54/github"

	"github.com/mattermost/mattermost/server/public/plugin/plugintest"

	"github.com/mattermost/mattermost-plugin-reviewtracker/server/tracker"
)

const (
	MockUserID        = "mockUserID"
	MockChannelID     = "mockChannelID"
	MockCreatorID     = "mockCreatorID"
	MockWebhookSecret = "mockWebhookSecret" // #nosec G101
	MockBotID         = "mockBotID"
	MockOrg           = "mockorg"
	MockRepoName      = "mockrepo"
	MockOrgRepo       = "mockorg/mockrepo"
	MockPostID        = "mockPostID"
	MockTeamSlug      = "core-review"
	MockReviewer      = "mockReviewer"
	MockUserLogin     = "mockUser"
	MockPRTitle       = "Leverage git-get-head"
	MockPRNumber      = 7
	GithubBaseURL     = "https://github.com/"
)

const MockRepoID int64 = 4242

// mockTrackingKVKey is the KV key the tracker uses for the mock pull request.
var mockTrackingKVKey = "pr_tracking_" + tracker.Key(MockRepoID, MockPRNumber)

// silentLogger satisfies tracker.Logger without registering expectations on
// the plugin API mock.
type silentLogger struct{}

func (silentLogger) LogDebug(string, ...interface{}) {}
func (silentLogger) LogWarn(string, ...interface{})  {}
func (silentLogger) LogError(string, ...interface{}) {}

// newTestPlugin returns a plugin wired against the given API mock, configured
// the way OnActivate would configure it.
func newTestPlugin(api *plugintest.API) *Plugin {
	p := NewPlugin()
	p.setConfiguration(&Configuration{
		GitHubOrg:     MockOrg,
		WebhookSecret: MockWebhookSecret,
		RetentionDays: 3,
	})
	p.SetAPI(api)
	p.initializeAPI()
	p.BotUserID = MockBotID

	p.tracker = tracker.New(tracker.Deps{
		Store: tracker.NewKVStore(api, func() int64 {
			return p.getConfiguration().retentionSeconds()
		}),
		Reactor:   &postReactor{api: api, botUserID: MockBotID},
		Locks:     tracker.NewMutexMap(),
		Announcer: p,
		Resolver:  p,
		RequiredApprovals: func(repoFullName string) int {
			return p.getConfiguration().RequiredApprovals(repoFullName)
		},
		Log: silentLogger{},
	})

	return p
}

func generateSignature(secret, body []byte) string {
	h := hmac.New(sha1.New, secret)
	h.Write(body)
	return "sha1=" + hex.EncodeToString(h.Sum(nil))
}

func GetMockPingEvent() *github.PingEvent {
	return &github.PingEvent{
		Zen:    github.String("Keep it logically awesome."),
		HookID: github.Int64(1),
	}
}

func getMockRepo(isPrivate bool) *github.Repository {
	return &github.Repository{
		ID:       github.Int64(MockRepoID),
		Name:     github.String(MockRepoName),
		FullName: github.String(MockOrgRepo),
		Private:  github.Bool(isPrivate),
		Owner:    &github.User{Login: github.String(MockOrg)},
		HTMLURL:  github.String(GithubBaseURL + MockOrgRepo),
	}
}

func getMockPullRequest() *github.PullRequest {
	return &github.PullRequest{
		Number:  github.Int(MockPRNumber),
		Title:   github.String(MockPRTitle),
		HTMLURL: github.String(fmt.Sprintf("%s%s/pull/%d", GithubBaseURL, MockOrgRepo, MockPRNumber)),
		User: &github.User{
			Login:   github.String(MockUserLogin),
			HTMLURL: github.String(GithubBaseURL + MockUserLogin),
		},
	}
}

func GetMockPullRequestEvent(action string, isPrivate bool) *github.PullRequestEvent {
	return &github.PullRequestEvent{
		Action:      github.String(action),
		Repo:        getMockRepo(isPrivate),
		PullRequest: getMockPullRequest(),
	}
}

func GetMockReviewRequestedEvent(teamSlug string, isPrivate bool) *github.PullRequestEvent {
	event := GetMockPullRequestEvent("review_requested", isPrivate)
	event.RequestedTeam = &github.Team{Slug: github.String(teamSlug)}
	return event
}

func GetMockPullRequestReviewEvent(action, state, reviewer string, isPrivate bool) *github.PullRequestReviewEvent {
	return &github.PullRequestReviewEvent{
		Action:      github.String(action),
		Repo:        getMockRepo(isPrivate),
		PullRequest: getMockPullRequest(),
		Review: &github.PullRequestReview{
			State: github.String(state),
			User:  &github.User{Login: github.String(reviewer)},
		},
	}
}

func GetMockPullRequestReviewCommentEvent(action string, isPrivate bool) *github.PullRequestReviewCommentEvent {
	return &github.PullRequestReviewCommentEvent{
		Action:      github.String(action),
		Repo:        getMockRepo(isPrivate),
		PullRequest: getMockPullRequest(),
		Comment: &github.PullRequestComment{
			Body: github.String("Nit: rename this."),
		},
	}
}
