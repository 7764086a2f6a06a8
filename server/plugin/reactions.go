package plugin

import (
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-reviewtracker/server/tracker"
)

// postReactor implements tracker.Reactor on top of the plugin API. Reaction
// operations fan out across all announcement posts of a pull request in
// parallel; the operation succeeds only when every post succeeded.
//
// The remote "already reacted" and "no such reaction" conflicts are success:
// the desired end state already holds. Anything else is a genuine failure the
// caller must not record locally.
type postReactor struct {
	api       plugin.API
	botUserID string
}

func (r *postReactor) Apply(posts []tracker.PostRef, emojiName string) error {
	return r.fanOut(posts, func(post tracker.PostRef) *model.AppError {
		_, appErr := r.api.AddReaction(&model.Reaction{
			UserId:    r.botUserID,
			PostId:    post.PostID,
			EmojiName: emojiName,
		})
		if appErr != nil && appErr.StatusCode == http.StatusConflict {
			// Already reacted.
			return nil
		}
		return appErr
	})
}

func (r *postReactor) Unapply(posts []tracker.PostRef, emojiName string) error {
	return r.fanOut(posts, func(post tracker.PostRef) *model.AppError {
		appErr := r.api.RemoveReaction(&model.Reaction{
			UserId:    r.botUserID,
			PostId:    post.PostID,
			EmojiName: emojiName,
		})
		if appErr != nil && appErr.StatusCode == http.StatusNotFound {
			// Reaction (or the whole post) is already gone.
			return nil
		}
		return appErr
	})
}

func (r *postReactor) fanOut(posts []tracker.PostRef, op func(tracker.PostRef) *model.AppError) error {
	var wg sync.WaitGroup
	errs := make([]error, len(posts))

	for i, post := range posts {
		wg.Add(1)
		go func(i int, post tracker.PostRef) {
			defer wg.Done()
			if appErr := op(post); appErr != nil {
				errs[i] = errors.Wrapf(appErr, "channel %s, post %s", post.ChannelID, post.PostID)
			}
		}(i, post)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
