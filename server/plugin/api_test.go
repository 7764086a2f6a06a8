package plugin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
)

func TestGetRoutesRequiresAuth(t *testing.T) {
	api := &plugintest.API{}
	p := newTestPlugin(api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
	w := httptest.NewRecorder()
	p.ServeHTTP(nil, w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetRoutesRequiresConfiguration(t *testing.T) {
	api := &plugintest.API{}
	p := newTestPlugin(api)
	p.setConfiguration(&Configuration{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
	req.Header.Set(headerMattermostUserID, MockUserID)
	w := httptest.NewRecorder()
	p.ServeHTTP(nil, w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestGetRoutes(t *testing.T) {
	api := &plugintest.API{}
	stored := marshalRoutes(t, &TeamRoutes{Teams: map[string][]*TeamRoute{
		MockTeamSlug: {{ChannelID: MockChannelID, CreatorID: MockCreatorID}},
	}})
	api.On("KVGet", routesKey).Return(stored, nil)

	p := newTestPlugin(api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
	req.Header.Set(headerMattermostUserID, MockUserID)
	w := httptest.NewRecorder()
	p.ServeHTTP(nil, w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, string(stored), w.Body.String())
}
