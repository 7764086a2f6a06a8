package plugin

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/mattermost/mattermost/server/public/pluginapi"
)

const defaultRetentionDays = 3

// Configuration captures the plugin's external configuration as exposed in the Mattermost server
// configuration, as well as values computed from the configuration. Any public fields will be
// deserialized from the Mattermost server configuration in OnConfigurationChange.
//
// As plugins are inherently concurrent (hooks being called asynchronously), and the plugin
// configuration can change at any time, access to the configuration must be synchronized. The
// strategy used in this plugin is to guard a pointer to the configuration, and clone the entire
// struct whenever it changes. You may replace this with whatever strategy you choose.
type Configuration struct {
	GitHubOrg                 string `json:"githuborg"`
	GitHubToken               string `json:"githubtoken"`
	WebhookSecret             string `json:"webhooksecret"`
	StrictRepositories        string `json:"strictrepositories"`
	RetentionDays             int    `json:"retentiondays"`
	EnterpriseBaseURL         string `json:"enterprisebaseurl"`
	EnablePrivateRepo         bool   `json:"enableprivaterepo"`
	EnableWebhookEventLogging bool   `json:"enablewebhookeventlogging"`
}

func (c *Configuration) ToMap() (map[string]interface{}, error) {
	var out map[string]interface{}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(data, &out)
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Configuration) setDefaults() (bool, error) {
	changed := false

	if c.WebhookSecret == "" {
		secret, err := generateSecret()
		if err != nil {
			return false, err
		}

		c.WebhookSecret = secret
		changed = true
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = defaultRetentionDays
		changed = true
	}

	return changed, nil
}

func (c *Configuration) sanitize() {
	c.EnterpriseBaseURL = strings.TrimRight(strings.TrimSpace(c.EnterpriseBaseURL), "/")
	c.GitHubOrg = strings.TrimSpace(c.GitHubOrg)
	c.GitHubToken = strings.TrimSpace(c.GitHubToken)
	c.StrictRepositories = strings.TrimSpace(c.StrictRepositories)
}

// IsValid checks if all needed fields are set.
func (c *Configuration) IsValid() error {
	if c.WebhookSecret == "" {
		return errors.New("must have a webhook secret")
	}

	if c.RetentionDays <= 0 {
		return errors.New("retention must be at least one day")
	}

	return nil
}

// IsStrictRepo reports whether the repository requires two approvals.
func (c *Configuration) IsStrictRepo(repoFullName string) bool {
	for _, repo := range strings.Split(c.StrictRepositories, ",") {
		if strings.EqualFold(strings.TrimSpace(repo), repoFullName) {
			return true
		}
	}
	return false
}

// RequiredApprovals returns the approval policy for the repository: two for
// repositories in the strict set, one otherwise.
func (c *Configuration) RequiredApprovals(repoFullName string) int {
	if c.IsStrictRepo(repoFullName) {
		return 2
	}
	return 1
}

func (c *Configuration) retentionSeconds() int64 {
	days := c.RetentionDays
	if days <= 0 {
		days = defaultRetentionDays
	}
	return int64(days) * 24 * 60 * 60
}

// Clone shallow copies the configuration. Your implementation may require a deep copy if
// your configuration has reference types.
func (c *Configuration) Clone() *Configuration {
	var clone = *c
	return &clone
}

// getConfiguration retrieves the active configuration under lock, making it safe to use
// concurrently. The active configuration may change underneath the client of this method, but
// the struct returned by this API call is considered immutable.
func (p *Plugin) getConfiguration() *Configuration {
	p.configurationLock.RLock()
	defer p.configurationLock.RUnlock()

	if p.configuration == nil {
		return &Configuration{}
	}

	return p.configuration
}

// setConfiguration replaces the active configuration under lock.
//
// Do not call setConfiguration while holding the configurationLock, as sync.Mutex is not
// reentrant. In particular, avoid using the plugin API entirely, as this may in turn trigger a
// hook back into the plugin. If that hook attempts to acquire this lock, a deadlock may occur.
//
// This method panics if setConfiguration is called with the existing configuration. This almost
// certainly means that the configuration was modified without being cloned and may result in
// an unsafe access.
func (p *Plugin) setConfiguration(configuration *Configuration) {
	p.configurationLock.Lock()
	defer p.configurationLock.Unlock()

	if configuration != nil && p.configuration == configuration {
		// Ignore assignment if the configuration struct is empty. Go will optimize the
		// allocation for same to point at the same memory address, breaking the check
		// above.
		if reflect.ValueOf(*configuration).NumField() == 0 {
			return
		}

		panic("setConfiguration called with the existing configuration")
	}

	p.configuration = configuration
}

func (p *Plugin) setDefaultConfiguration() error {
	config := p.getConfiguration()

	changed, err := config.setDefaults()
	if err != nil {
		return err
	}

	if changed {
		configMap, err := config.ToMap()
		if err != nil {
			return err
		}

		if appErr := p.API.SavePluginConfig(configMap); appErr != nil {
			return appErr
		}
	}

	return nil
}

// OnConfigurationChange is invoked when configuration changes may have been made.
func (p *Plugin) OnConfigurationChange() error {
	if p.client == nil {
		p.client = pluginapi.NewClient(p.API, p.Driver)
	}

	var configuration = new(Configuration)

	// Load the public configuration fields from the Mattermost server configuration.
	if err := p.client.Configuration.LoadPluginConfiguration(configuration); err != nil {
		return errors.Wrap(err, "failed to load plugin configuration")
	}

	configuration.sanitize()

	p.setConfiguration(configuration)

	if err := p.client.SlashCommand.Register(p.getCommand()); err != nil {
		return errors.Wrap(err, "failed to register command")
	}

	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, 256)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	s := base64.RawStdEncoding.EncodeToString(b)

	s = s[:32]

	return s, nil
}
