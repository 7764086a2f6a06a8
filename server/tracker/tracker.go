package tracker

import (
	"strings"

	"github.com/google/go-github/v54/github"
)

const (
	reviewStateApproved         = "approved"
	reviewStateChangesRequested = "changes_requested"
	reviewStateCommented        = "commented"
)

// Reactor applies and removes a reaction across all announcement posts of a
// pull request. Both operations are idempotent: a reaction that is already
// present (or already absent) counts as success. An error means at least one
// post could not be updated and the caller must not record the reaction
// locally.
type Reactor interface {
	Apply(posts []PostRef, emojiName string) error
	Unapply(posts []PostRef, emojiName string) error
}

// Announcer posts the announcement for a newly requested review and returns
// the location of the created post.
type Announcer interface {
	Announce(channelID string, event *github.PullRequestEvent) (PostRef, error)
}

// Resolver maps GitHub team slugs to the channels their reviews are
// announced in.
type Resolver interface {
	ResolveChannelsForTeams(teamSlugs []string) []string
}

// Policy returns the number of approvals a repository requires before a pull
// request is ready to merge. Consulted on every evaluation so policy changes
// take effect without record migration.
type Policy func(repoFullName string) int

// Logger matches the plugin API logging methods so the plugin API can be
// passed in directly.
type Logger interface {
	LogDebug(msg string, keyValuePairs ...interface{})
	LogWarn(msg string, keyValuePairs ...interface{})
	LogError(msg string, keyValuePairs ...interface{})
}

// Deps are the collaborators a Tracker needs.
type Deps struct {
	Store             Store
	Reactor           Reactor
	Locks             Locker
	Announcer         Announcer
	Resolver          Resolver
	RequiredApprovals Policy
	Log               Logger
}

// Tracker is the reconciliation engine. Given a webhook event and the current
// tracking record it computes the new review sets and the reaction delta,
// issues the reaction operations, and commits the record. Handlers never
// return errors: every failure is logged and retried implicitly by the next
// event touching the same pull request, so webhook deliveries are always
// acknowledged.
type Tracker struct {
	store             Store
	reactor           Reactor
	locks             Locker
	announcer         Announcer
	resolver          Resolver
	requiredApprovals Policy
	log               Logger
}

func New(deps Deps) *Tracker {
	return &Tracker{
		store:             deps.Store,
		reactor:           deps.Reactor,
		locks:             deps.Locks,
		announcer:         deps.Announcer,
		resolver:          deps.Resolver,
		requiredApprovals: deps.RequiredApprovals,
		log:               deps.Log,
	}
}

// reactionDelta is the set of reactions to add and remove for one event.
type reactionDelta struct {
	adds    []string
	removes []string
}

func (d *reactionDelta) add(emojiNames ...string) {
	d.adds = append(d.adds, emojiNames...)
}

func (d *reactionDelta) remove(emojiNames ...string) {
	d.removes = append(d.removes, emojiNames...)
}

// HandleReviewRequested announces the pull request to every channel mapped to
// the requested teams and creates or extends the tracking record. Channels
// the PR was already announced to are skipped. The record is only created
// once at least one announcement succeeded.
func (t *Tracker) HandleReviewRequested(event *github.PullRequestEvent) {
	repo := event.GetRepo()
	pr := event.GetPullRequest()
	key := Key(repo.GetID(), pr.GetNumber())

	slugs := requestedTeamSlugs(event)
	if len(slugs) == 0 {
		t.log.LogDebug("Review requested without a team, nothing to announce", "key", key)
		return
	}

	channels := t.resolver.ResolveChannelsForTeams(slugs)
	if len(channels) == 0 {
		t.log.LogDebug("No channels mapped to requested teams", "key", key, "teams", strings.Join(slugs, ","))
		return
	}

	t.locks.Lock(key)
	defer t.locks.Unlock(key)

	rec, err := t.store.Get(key)
	if err != nil {
		t.log.LogWarn("Failed to read tracking record", "key", key, "error", err.Error())
		return
	}
	if rec == nil {
		rec = NewTrackedPR(key, repo.GetFullName())
	}

	announced := false
	for _, channelID := range channels {
		if rec.HasChannel(channelID) {
			continue
		}

		post, err := t.announcer.Announce(channelID, event)
		if err != nil {
			t.log.LogWarn("Failed to announce pull request", "key", key, "channel_id", channelID, "error", err.Error())
			continue
		}

		rec.Posts = append(rec.Posts, post)
		announced = true
	}

	if !announced || len(rec.Posts) == 0 {
		return
	}

	if err := t.store.Set(key, rec); err != nil {
		t.log.LogWarn("Failed to store tracking record", "key", key, "error", err.Error())
	}
}

// HandleSynchronize resets the review state when new commits are pushed:
// outstanding approvals and change requests no longer apply to the new head.
func (t *Tracker) HandleSynchronize(event *github.PullRequestEvent) {
	repo := event.GetRepo()
	key := Key(repo.GetID(), event.GetPullRequest().GetNumber())

	t.locks.Lock(key)
	defer t.locks.Unlock(key)

	rec, err := t.store.Get(key)
	if err != nil {
		t.log.LogWarn("Failed to read tracking record", "key", key, "error", err.Error())
		return
	}
	if rec == nil {
		t.log.LogDebug("Synchronize event for untracked pull request", "key", key)
		return
	}

	rec.Approvals = StringSet{}
	rec.ChangesRequested = StringSet{}

	var delta reactionDelta
	delta.remove(EmojiApproved, EmojiReadyToMerge, EmojiNeedsReview)

	t.applyDelta(rec, delta)

	if err := t.store.Set(key, rec); err != nil {
		t.log.LogWarn("Failed to store tracking record", "key", key, "error", err.Error())
	}
}

// HandleReview applies a submitted review. The reviewer's most recent review
// state wins: an approval evicts them from the changes-requested set and vice
// versa, keeping the two sets disjoint.
func (t *Tracker) HandleReview(event *github.PullRequestReviewEvent) {
	if event.GetAction() != "submitted" {
		return
	}

	reviewer := event.GetReview().GetUser().GetLogin()
	if reviewer == "" {
		return
	}

	repo := event.GetRepo()
	key := Key(repo.GetID(), event.GetPullRequest().GetNumber())

	t.locks.Lock(key)
	defer t.locks.Unlock(key)

	rec, err := t.store.Get(key)
	if err != nil {
		t.log.LogWarn("Failed to read tracking record", "key", key, "error", err.Error())
		return
	}
	if rec == nil {
		t.log.LogDebug("Review event for untracked pull request", "key", key)
		return
	}

	var delta reactionDelta
	switch strings.ToLower(event.GetReview().GetState()) {
	case reviewStateApproved:
		rec.ChangesRequested.Remove(reviewer)
		rec.Approvals.Add(reviewer)

		delta.add(EmojiApproved)
		switch rec.Status(t.requiredApprovals(rec.RepoFullName)) {
		case StatusReadyToMerge:
			delta.add(EmojiReadyToMerge)
			delta.remove(EmojiPartialApproval)
		case StatusPartiallyApproved:
			delta.add(EmojiPartialApproval)
		}
		delta.remove(EmojiCommented, EmojiNeedsReview)
	case reviewStateChangesRequested:
		rec.Approvals.Remove(reviewer)
		rec.ChangesRequested.Add(reviewer)

		delta.add(EmojiNeedsReview)
		delta.remove(EmojiReadyToMerge, EmojiApproved)
	case reviewStateCommented:
		delta.add(EmojiCommented)
	default:
		return
	}

	t.applyDelta(rec, delta)

	if err := t.store.Set(key, rec); err != nil {
		t.log.LogWarn("Failed to store tracking record", "key", key, "error", err.Error())
	}
}

// HandleReviewComment marks the pull request as commented on. The review
// sets are untouched.
func (t *Tracker) HandleReviewComment(event *github.PullRequestReviewCommentEvent) {
	if event.GetAction() != "created" {
		return
	}

	repo := event.GetRepo()
	key := Key(repo.GetID(), event.GetPullRequest().GetNumber())

	t.locks.Lock(key)
	defer t.locks.Unlock(key)

	rec, err := t.store.Get(key)
	if err != nil {
		t.log.LogWarn("Failed to read tracking record", "key", key, "error", err.Error())
		return
	}
	if rec == nil {
		t.log.LogDebug("Review comment for untracked pull request", "key", key)
		return
	}

	var delta reactionDelta
	delta.add(EmojiCommented)

	t.applyDelta(rec, delta)

	if err := t.store.Set(key, rec); err != nil {
		t.log.LogWarn("Failed to store tracking record", "key", key, "error", err.Error())
	}
}

// HandleClosed settles the final reactions and deletes the tracking record.
// The record is deleted even when a reaction operation failed: the pull
// request reached a terminal state and no later event will retry.
func (t *Tracker) HandleClosed(event *github.PullRequestEvent) {
	repo := event.GetRepo()
	key := Key(repo.GetID(), event.GetPullRequest().GetNumber())

	t.locks.Lock(key)
	defer t.locks.Unlock(key)

	rec, err := t.store.Get(key)
	if err != nil {
		t.log.LogWarn("Failed to read tracking record", "key", key, "error", err.Error())
		return
	}
	if rec == nil {
		t.log.LogDebug("Closed event for untracked pull request", "key", key)
		return
	}

	var delta reactionDelta
	if event.GetPullRequest().GetMerged() {
		delta.add(EmojiApproved, EmojiMerged)
		delta.remove(EmojiReadyToMerge, EmojiNeedsReview, EmojiCommented)
	} else {
		delta.add(EmojiClosed)
		delta.remove(EmojiApproved, EmojiReadyToMerge, EmojiNeedsReview, EmojiCommented)
	}

	t.applyDelta(rec, delta)

	if err := t.store.Delete(key); err != nil {
		t.log.LogWarn("Failed to delete tracking record", "key", key, "error", err.Error())
	}
}

// applyDelta issues the reaction operations and updates the applied-reactions
// mirror per label. Adds already present in the mirror are skipped without an
// API call; removes absent from the mirror likewise, since the engine only
// ever removes reactions it applied itself. A label is recorded only when the
// operation succeeded on every post, so a partial failure leaves the mirror
// untouched and the next event retries.
func (t *Tracker) applyDelta(rec *TrackedPR, delta reactionDelta) {
	for _, emojiName := range delta.adds {
		if rec.AppliedReactions.Has(emojiName) {
			continue
		}

		if err := t.reactor.Apply(rec.Posts, emojiName); err != nil {
			t.log.LogWarn("Failed to add reaction", "key", rec.Key, "emoji", emojiName, "error", err.Error())
			continue
		}

		rec.AppliedReactions.Add(emojiName)
	}

	for _, emojiName := range delta.removes {
		if !rec.AppliedReactions.Has(emojiName) {
			continue
		}

		if err := t.reactor.Unapply(rec.Posts, emojiName); err != nil {
			t.log.LogWarn("Failed to remove reaction", "key", rec.Key, "emoji", emojiName, "error", err.Error())
			continue
		}

		rec.AppliedReactions.Remove(emojiName)
	}
}

func requestedTeamSlugs(event *github.PullRequestEvent) []string {
	if team := event.GetRequestedTeam(); team != nil {
		return []string{team.GetSlug()}
	}

	var slugs []string
	for _, team := range event.GetPullRequest().RequestedTeams {
		if slug := team.GetSlug(); slug != "" {
			slugs = append(slugs, slug)
		}
	}
	return slugs
}
