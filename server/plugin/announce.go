package plugin

import (
	"context"
	"html"
	"strings"

	"github.com/google/go-github/v54/github"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-reviewtracker/server/tracker"
)

const (
	postTypeAnnouncement = "custom_pr_announcement"

	postPropRepo     = "gh_repository"
	postPropPRNumber = "gh_pr_number"
)

// Announce posts the review-request announcement for a pull request to the
// given channel and returns where it landed. This is the post whose reactions
// the tracker keeps in sync afterwards.
func (p *Plugin) Announce(channelID string, event *github.PullRequestEvent) (tracker.PostRef, error) {
	p.enrichPullRequest(event)

	message, err := renderTemplate("announcement", event)
	if err != nil {
		return tracker.PostRef{}, errors.Wrap(err, "failed to render announcement")
	}

	post := &model.Post{
		UserId:    p.BotUserID,
		ChannelId: channelID,
		Message:   p.sanitizeDescription(message),
		Type:      postTypeAnnouncement,
	}
	post.AddProp(postPropRepo, strings.ToLower(event.GetRepo().GetFullName()))
	post.AddProp(postPropPRNumber, event.GetPullRequest().GetNumber())

	created, appErr := p.API.CreatePost(post)
	if appErr != nil {
		return tracker.PostRef{}, errors.Wrap(appErr, "failed to create announcement post")
	}

	return tracker.PostRef{ChannelID: channelID, PostID: created.Id}, nil
}

// enrichPullRequest replaces the event's pull request with a fresh copy from
// the GitHub API when a service token is configured. Webhook payloads can be
// stale by the time the delivery is processed; a failed fetch just falls back
// to the payload.
func (p *Plugin) enrichPullRequest(event *github.PullRequestEvent) {
	client := p.githubClient()
	if client == nil {
		return
	}

	repo := event.GetRepo()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	fresh, _, err := client.PullRequests.Get(ctx, repo.GetOwner().GetLogin(), repo.GetName(), event.GetPullRequest().GetNumber())
	if err != nil {
		p.API.LogDebug("Failed to fetch pull request for announcement", "repo", repo.GetFullName(), "error", err.Error())
		return
	}

	event.PullRequest = fresh
}

func (p *Plugin) sanitizeDescription(description string) string {
	if strings.Contains(description, "<details>") {
		var policy = bluemonday.StrictPolicy()
		policy.SkipElementsContent("details")
		description = html.UnescapeString(policy.Sanitize(description))
	}
	return strings.TrimSpace(description)
}
