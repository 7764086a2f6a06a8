package tracker

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Emoji names applied to announcement posts. These are the only reactions the
// engine will ever add or remove; human reactions on the same posts are left
// alone because the applied-reactions mirror never contains them.
const (
	EmojiApproved        = "white_check_mark"
	EmojiPartialApproval = "ballot_box_with_check"
	EmojiReadyToMerge    = "rocket"
	EmojiNeedsReview     = "warning"
	EmojiCommented       = "speech_balloon"
	EmojiMerged          = "tada"
	EmojiClosed          = "x"
)

// Status is the merge readiness derived from the review sets and the approval
// policy. It is recomputed on every evaluation and never persisted.
type Status int

const (
	StatusNoApprovals Status = iota
	StatusPartiallyApproved
	StatusReadyToMerge
	StatusChangesRequested
)

func (s Status) String() string {
	switch s {
	case StatusNoApprovals:
		return "no_approvals"
	case StatusPartiallyApproved:
		return "partially_approved"
	case StatusReadyToMerge:
		return "ready_to_merge"
	case StatusChangesRequested:
		return "changes_requested"
	default:
		return "unknown"
	}
}

// PostRef locates one announcement post for a tracked pull request.
type PostRef struct {
	ChannelID string `json:"channel_id"`
	PostID    string `json:"post_id"`
}

// StringSet is a set of strings that serializes as a sorted JSON array, so
// round-tripping a record is lossless and independent of insertion order.
type StringSet map[string]struct{}

func NewStringSet(values ...string) StringSet {
	s := StringSet{}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

func (s StringSet) Add(value string) {
	s[value] = struct{}{}
}

func (s StringSet) Remove(value string) {
	delete(s, value)
}

func (s StringSet) Has(value string) bool {
	_, ok := s[value]
	return ok
}

func (s StringSet) Len() int {
	return len(s)
}

// Values returns the members in sorted order.
func (s StringSet) Values() []string {
	values := make([]string, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}

// TrackedPR is the per-PR tracking record. One exists for every pull request
// that is open and announced; it is deleted on merge or close and expires
// after the retention window as a safety net against missed terminal events.
type TrackedPR struct {
	Key          string    `json:"key"`
	RepoFullName string    `json:"repo_full_name"`
	Posts        []PostRef `json:"posts"`

	// Approvals and ChangesRequested are disjoint: a reviewer's most recent
	// review evicts them from the other set.
	Approvals        StringSet `json:"approvals"`
	ChangesRequested StringSet `json:"changes_requested"`

	// AppliedReactions mirrors the reactions this engine believes are present
	// on every tracked post. Only updated when a reaction operation succeeds
	// across all posts, so it never diverges silently from remote state.
	AppliedReactions StringSet `json:"applied_reactions"`
}

// Key builds the cache key for a pull request from its repository ID and
// number. Stable for the PR's tracked lifetime.
func Key(repoID int64, prNumber int) string {
	return fmt.Sprintf("%d:%d", repoID, prNumber)
}

func NewTrackedPR(key, repoFullName string) *TrackedPR {
	return &TrackedPR{
		Key:              key,
		RepoFullName:     repoFullName,
		Approvals:        StringSet{},
		ChangesRequested: StringSet{},
		AppliedReactions: StringSet{},
	}
}

// HasChannel reports whether the PR was already announced to the channel.
func (pr *TrackedPR) HasChannel(channelID string) bool {
	for _, post := range pr.Posts {
		if post.ChannelID == channelID {
			return true
		}
	}
	return false
}

// Status derives the merge readiness for the given required approval count.
// Outstanding change requests dominate regardless of how many approvals the
// PR has collected.
func (pr *TrackedPR) Status(requiredApprovals int) Status {
	switch {
	case pr.ChangesRequested.Len() > 0:
		return StatusChangesRequested
	case pr.Approvals.Len() >= requiredApprovals:
		return StatusReadyToMerge
	case pr.Approvals.Len() > 0:
		return StatusPartiallyApproved
	default:
		return StatusNoApprovals
	}
}
