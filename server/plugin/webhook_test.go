// Copyright (c) 2018-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package plugin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v54/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin/plugintest"

	"github.com/mattermost/mattermost-plugin-reviewtracker/server/tracker"
)

func TestVerifyWebhookSignature(t *testing.T) {
	tests := []struct {
		name       string
		secret     []byte
		signature  string
		body       []byte
		assertions func(t *testing.T, valid bool, err error)
	}{
		{
			name:      "Valid signature",
			secret:    []byte("test-secret"),
			signature: generateSignature([]byte("test-secret"), []byte("test-body")),
			body:      []byte("test-body"),
			assertions: func(t *testing.T, valid bool, err error) {
				assert.NoError(t, err)
				assert.True(t, valid)
			},
		},
		{
			name:      "Invalid signature prefix",
			secret:    []byte("test-secret"),
			signature: "invalid-prefix=1234567890abcdef",
			body:      []byte("test-body"),
			assertions: func(t *testing.T, valid bool, err error) {
				assert.NoError(t, err)
				assert.False(t, valid)
			},
		},
		{
			name:      "Invalid signature length",
			secret:    []byte("test-secret"),
			signature: "sha1=short",
			body:      []byte("test-body"),
			assertions: func(t *testing.T, valid bool, err error) {
				assert.NoError(t, err)
				assert.False(t, valid)
			},
		},
		{
			name:      "Hex decode error",
			secret:    []byte("test-secret"),
			signature: "sha1=gggggggggggggggggggggggggggggggggggggggg",
			body:      []byte("test-body"),
			assertions: func(t *testing.T, valid bool, err error) {
				assert.Error(t, err)
				assert.False(t, valid)
			},
		},
		{
			name:      "Signed with a different secret",
			secret:    []byte("test-secret"),
			signature: generateSignature([]byte("other-secret"), []byte("test-body")),
			body:      []byte("test-body"),
			assertions: func(t *testing.T, valid bool, err error) {
				assert.NoError(t, err)
				assert.False(t, valid)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := verifyWebhookSignature(tt.secret, tt.signature, tt.body)

			tt.assertions(t, valid, err)
		})
	}
}

func postWebhook(t *testing.T, p *Plugin, eventType string, payload []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-Hub-Signature", generateSignature([]byte(secret), payload))

	w := httptest.NewRecorder()
	p.ServeHTTP(nil, w, req)
	return w
}

func marshalEvent(t *testing.T, event interface{}) []byte {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func TestHandleWebhookRejectsInvalidSignature(t *testing.T) {
	api := &plugintest.API{}
	p := newTestPlugin(api)

	payload := marshalEvent(t, GetMockPingEvent())
	w := postWebhook(t, p, "ping", payload, "wrong-secret")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	api.AssertExpectations(t)
}

func TestHandleWebhookRejectsMalformedPayload(t *testing.T) {
	api := &plugintest.API{}
	api.On("LogDebug", mock.AnythingOfType("string"), "error", mock.Anything).Return()
	p := newTestPlugin(api)

	w := postWebhook(t, p, "pull_request", []byte("{"), MockWebhookSecret)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	api.AssertExpectations(t)
}

func TestHandleWebhookPing(t *testing.T) {
	api := &plugintest.API{}
	api.On("LogDebug", "Webhook ping received", "hook_id", mock.Anything).Return()
	p := newTestPlugin(api)

	payload := marshalEvent(t, GetMockPingEvent())
	w := postWebhook(t, p, "ping", payload, MockWebhookSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	api.AssertExpectations(t)
}

func TestHandleWebhookIgnoresPrivateRepo(t *testing.T) {
	api := &plugintest.API{}
	p := newTestPlugin(api)

	event := GetMockPullRequestReviewEvent("submitted", "approved", MockReviewer, true)
	w := postWebhook(t, p, "pull_request_review", marshalEvent(t, event), MockWebhookSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	api.AssertNotCalled(t, "KVGet", mock.Anything)
}

func TestHandleWebhookIgnoresForeignOrg(t *testing.T) {
	api := &plugintest.API{}
	api.On("LogDebug", "Ignoring webhook event", "repo", mock.Anything, "reason", mock.Anything).Return()
	p := newTestPlugin(api)

	event := GetMockPullRequestReviewEvent("submitted", "approved", MockReviewer, false)
	event.Repo.Owner = &github.User{Login: github.String("otherOrg")}
	w := postWebhook(t, p, "pull_request_review", marshalEvent(t, event), MockWebhookSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	api.AssertNotCalled(t, "KVGet", mock.Anything)
}

func TestHandleWebhookUntrackedReviewIsNoop(t *testing.T) {
	api := &plugintest.API{}
	api.On("KVGet", mockTrackingKVKey).Return(nil, nil)
	p := newTestPlugin(api)

	event := GetMockPullRequestReviewEvent("submitted", "approved", MockReviewer, false)
	w := postWebhook(t, p, "pull_request_review", marshalEvent(t, event), MockWebhookSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	api.AssertNotCalled(t, "AddReaction", mock.Anything)
	api.AssertExpectations(t)
}

func TestHandleWebhookReviewApprovedAddsReactions(t *testing.T) {
	api := &plugintest.API{}

	rec := tracker.NewTrackedPR(tracker.Key(MockRepoID, MockPRNumber), MockOrgRepo)
	rec.Posts = []tracker.PostRef{{ChannelID: MockChannelID, PostID: MockPostID}}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	api.On("KVGet", mockTrackingKVKey).Return(data, nil)
	api.On("AddReaction", mock.MatchedBy(func(r *model.Reaction) bool {
		return r.PostId == MockPostID && r.UserId == MockBotID && r.EmojiName == tracker.EmojiApproved
	})).Return(&model.Reaction{}, nil)
	api.On("AddReaction", mock.MatchedBy(func(r *model.Reaction) bool {
		return r.PostId == MockPostID && r.UserId == MockBotID && r.EmojiName == tracker.EmojiReadyToMerge
	})).Return(&model.Reaction{}, nil)
	api.On("KVSetWithExpiry", mockTrackingKVKey, mock.AnythingOfType("[]uint8"), tracker.DefaultRetentionSeconds).Return(nil)

	p := newTestPlugin(api)

	event := GetMockPullRequestReviewEvent("submitted", "approved", MockReviewer, false)
	w := postWebhook(t, p, "pull_request_review", marshalEvent(t, event), MockWebhookSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	api.AssertExpectations(t)
}

func TestHandleWebhookClosedDeletesRecord(t *testing.T) {
	api := &plugintest.API{}

	rec := tracker.NewTrackedPR(tracker.Key(MockRepoID, MockPRNumber), MockOrgRepo)
	rec.Posts = []tracker.PostRef{{ChannelID: MockChannelID, PostID: MockPostID}}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	api.On("KVGet", mockTrackingKVKey).Return(data, nil)
	api.On("AddReaction", mock.MatchedBy(func(r *model.Reaction) bool {
		return r.EmojiName == tracker.EmojiClosed
	})).Return(&model.Reaction{}, nil)
	api.On("KVDelete", mockTrackingKVKey).Return(nil)

	p := newTestPlugin(api)

	event := GetMockPullRequestEvent("closed", false)
	event.PullRequest.Merged = github.Bool(false)
	w := postWebhook(t, p, "pull_request", marshalEvent(t, event), MockWebhookSecret)

	assert.Equal(t, http.StatusOK, w.Code)
	api.AssertExpectations(t)
}
