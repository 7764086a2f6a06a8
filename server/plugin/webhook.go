package plugin

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // GitHub webhooks are signed using sha1 https://developer.github.com/webhooks/.
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v54/github"
)

const (
	actionReviewRequested = "review_requested"
	actionSynchronize     = "synchronize"
	actionClosed          = "closed"
)

func verifyWebhookSignature(secret []byte, signature string, body []byte) (bool, error) {
	const signaturePrefix = "sha1="
	const signatureLength = 45

	if len(signature) != signatureLength || !strings.HasPrefix(signature, signaturePrefix) {
		return false, nil
	}

	actual := make([]byte, 20)
	_, err := hex.Decode(actual, []byte(signature[5:]))
	if err != nil {
		return false, err
	}

	sb, err := signBody(secret, body)
	if err != nil {
		return false, err
	}

	return hmac.Equal(sb, actual), nil
}

func signBody(secret, body []byte) ([]byte, error) {
	computed := hmac.New(sha1.New, secret)
	_, err := computed.Write(body)
	if err != nil {
		return nil, err
	}

	return computed.Sum(nil), nil
}

// handleWebhook is the single ingress for GitHub deliveries. The matched
// handler runs to completion before the response is written: acknowledging a
// delivery only after reconciliation finished keeps GitHub from redelivering
// the same event while it is still being applied. Reconciliation failures are
// logged, never surfaced, since GitHub retries a non-2xx delivery verbatim.
func (p *Plugin) handleWebhook(w http.ResponseWriter, r *http.Request) {
	config := p.getConfiguration()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature")
	valid, err := verifyWebhookSignature([]byte(config.WebhookSecret), signature, body)
	if err != nil {
		p.API.LogWarn("Failed to verify webhook signature", "error", err.Error())
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if !valid {
		http.Error(w, "Not authorized", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), body)
	if err != nil {
		p.API.LogDebug("GitHub webhook content type should be set to \"application/json\"", "error", err.Error())
		http.Error(w, "wrong mime-type. should be \"application/json\"", http.StatusBadRequest)
		return
	}

	if config.EnableWebhookEventLogging {
		bodyByte, err := json.Marshal(event)
		if err != nil {
			p.API.LogWarn("Error while Marshal Webhook Request", "error", err.Error())
			http.Error(w, "Error while Marshal Webhook Request", http.StatusBadRequest)
			return
		}
		p.API.LogDebug("Webhook Event Log", "event", string(bodyByte))
	}

	var repo *github.Repository
	var handler func()

	switch event := event.(type) {
	case *github.PingEvent:
		handler = func() {
			p.API.LogDebug("Webhook ping received", "hook_id", event.GetHookID())
		}
	case *github.PullRequestEvent:
		repo = event.GetRepo()
		handler = func() {
			p.handlePullRequestEvent(event)
		}
	case *github.PullRequestReviewEvent:
		repo = event.GetRepo()
		handler = func() {
			p.tracker.HandleReview(event)
		}
	case *github.PullRequestReviewCommentEvent:
		repo = event.GetRepo()
		handler = func() {
			p.tracker.HandleReviewComment(event)
		}
	}

	if handler == nil {
		return
	}

	if repo != nil {
		if repo.GetPrivate() && !config.EnablePrivateRepo {
			return
		}

		if err := p.checkOrg(repo.GetOwner().GetLogin()); err != nil {
			p.API.LogDebug("Ignoring webhook event", "repo", repo.GetFullName(), "reason", err.Error())
			return
		}
	}

	handler()
}

func (p *Plugin) handlePullRequestEvent(event *github.PullRequestEvent) {
	switch event.GetAction() {
	case actionReviewRequested:
		p.tracker.HandleReviewRequested(event)
	case actionSynchronize:
		p.tracker.HandleSynchronize(event)
	case actionClosed:
		p.tracker.HandleClosed(event)
	}
}
