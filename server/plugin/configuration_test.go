package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationIsValid(t *testing.T) {
	tests := []struct {
		name    string
		config  Configuration
		wantErr bool
	}{
		{
			name: "valid configuration",
			config: Configuration{
				WebhookSecret: MockWebhookSecret,
				RetentionDays: 3,
			},
			wantErr: false,
		},
		{
			name: "missing webhook secret",
			config: Configuration{
				RetentionDays: 3,
			},
			wantErr: true,
		},
		{
			name: "zero retention",
			config: Configuration{
				WebhookSecret: MockWebhookSecret,
			},
			wantErr: true,
		},
		{
			name: "negative retention",
			config: Configuration{
				WebhookSecret: MockWebhookSecret,
				RetentionDays: -1,
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.IsValid()
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestSetDefaults(t *testing.T) {
	t.Run("generates a webhook secret and retention", func(t *testing.T) {
		config := Configuration{}

		changed, err := config.setDefaults()

		require.NoError(t, err)
		assert.True(t, changed)
		assert.Len(t, config.WebhookSecret, 32)
		assert.Equal(t, defaultRetentionDays, config.RetentionDays)
	})

	t.Run("existing values are kept", func(t *testing.T) {
		config := Configuration{
			WebhookSecret: MockWebhookSecret,
			RetentionDays: 7,
		}

		changed, err := config.setDefaults()

		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, MockWebhookSecret, config.WebhookSecret)
		assert.Equal(t, 7, config.RetentionDays)
	})
}

func TestSanitize(t *testing.T) {
	config := Configuration{
		GitHubOrg:          " mockorg ",
		GitHubToken:        " token ",
		StrictRepositories: " mockorg/mockrepo ",
		EnterpriseBaseURL:  " https://github.internal/ ",
	}

	config.sanitize()

	assert.Equal(t, "mockorg", config.GitHubOrg)
	assert.Equal(t, "token", config.GitHubToken)
	assert.Equal(t, "mockorg/mockrepo", config.StrictRepositories)
	assert.Equal(t, "https://github.internal", config.EnterpriseBaseURL)
}

func TestIsStrictRepo(t *testing.T) {
	tests := []struct {
		name         string
		strictRepos  string
		repoFullName string
		want         bool
	}{
		{
			name:         "empty list",
			strictRepos:  "",
			repoFullName: MockOrgRepo,
			want:         false,
		},
		{
			name:         "listed repository",
			strictRepos:  "mockorg/mockrepo",
			repoFullName: MockOrgRepo,
			want:         true,
		},
		{
			name:         "listed among others with whitespace",
			strictRepos:  "mockorg/other, mockorg/mockrepo ,mockorg/another",
			repoFullName: MockOrgRepo,
			want:         true,
		},
		{
			name:         "case-insensitive match",
			strictRepos:  "MockOrg/MockRepo",
			repoFullName: MockOrgRepo,
			want:         true,
		},
		{
			name:         "unlisted repository",
			strictRepos:  "mockorg/other",
			repoFullName: MockOrgRepo,
			want:         false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Configuration{StrictRepositories: tt.strictRepos}

			assert.Equal(t, tt.want, config.IsStrictRepo(tt.repoFullName))
		})
	}
}

func TestRequiredApprovals(t *testing.T) {
	config := Configuration{StrictRepositories: "mockorg/mockrepo"}

	assert.Equal(t, 2, config.RequiredApprovals(MockOrgRepo))
	assert.Equal(t, 1, config.RequiredApprovals("mockorg/other"))
}

func TestRetentionSeconds(t *testing.T) {
	assert.Equal(t, int64(3*24*60*60), (&Configuration{RetentionDays: 3}).retentionSeconds())
	assert.Equal(t, int64(7*24*60*60), (&Configuration{RetentionDays: 7}).retentionSeconds())
	// An unset retention falls back to the default rather than expiring immediately.
	assert.Equal(t, int64(defaultRetentionDays*24*60*60), (&Configuration{}).retentionSeconds())
}

func TestSetConfiguration(t *testing.T) {
	t.Run("nil configuration yields empty", func(t *testing.T) {
		p := NewPlugin()

		config := p.getConfiguration()

		require.NotNil(t, config)
		assert.Empty(t, config.WebhookSecret)
	})

	t.Run("same pointer panics", func(t *testing.T) {
		p := NewPlugin()
		config := &Configuration{WebhookSecret: MockWebhookSecret}
		p.setConfiguration(config)

		assert.Panics(t, func() {
			p.setConfiguration(config)
		})
	})
}
