package plugin

import (
	"bytes"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
)

const mdCommentRegexPattern string = `(<!--[\S\s]+?-->)`

var mdCommentRegex = regexp.MustCompile(mdCommentRegexPattern)
var masterTemplate *template.Template
var gitHubToUsernameMappingCallback func(string) string

// registerGitHubToUsernameMappingCallback registers the function rendering
// uses to resolve a GitHub username to a Mattermost username.
func registerGitHubToUsernameMappingCallback(callback func(string) string) {
	gitHubToUsernameMappingCallback = callback
}

func lookupMattermostUsername(githubUsername string) string {
	if gitHubToUsernameMappingCallback == nil {
		return ""
	}

	return gitHubToUsernameMappingCallback(githubUsername)
}

func init() {
	var funcMap = sprig.TxtFuncMap()

	// Resolve a GitHub username to the corresponding Mattermost username, if linked.
	funcMap["lookupMattermostUsername"] = lookupMattermostUsername

	// Trim away markdown comments in the text
	funcMap["removeComments"] = func(body string) string {
		if len(strings.TrimSpace(body)) == 0 {
			return ""
		}
		return mdCommentRegex.ReplaceAllString(body, "")
	}

	masterTemplate = template.Must(template.New("master").Funcs(funcMap).Parse(""))

	// The user template links to the corresponding GitHub user. If the GitHub user is a known
	// Mattermost user, their Mattermost handle is referenced as an at-mention instead.
	template.Must(masterTemplate.New("user").Parse(`
{{- $mattermostUsername := .GetLogin | lookupMattermostUsername}}
{{- if $mattermostUsername }}@{{$mattermostUsername}}
{{- else}}[{{.GetLogin}}]({{.GetHTMLURL}})
{{- end -}}
	`))

	// The repo template links to the corresponding repository.
	template.Must(masterTemplate.New("repo").Parse(
		`[\[{{.GetFullName}}\]]({{.GetHTMLURL}})`,
	))

	// The pull request template links to the corresponding pull request.
	template.Must(masterTemplate.New("pullRequest").Parse(
		`[#{{.GetNumber}} {{.GetTitle}}]({{.GetHTMLURL}})`,
	))

	// The announcement posted when a team's review is requested. The
	// tracker keeps this post's reactions in sync with the review state.
	template.Must(masterTemplate.New("announcement").Funcs(funcMap).Parse(`
{{- template "repo" .GetRepo }} Review requested: {{template "pullRequest" .GetPullRequest}} by {{template "user" .GetPullRequest.GetUser}}
{{- $body := .GetPullRequest.GetBody | removeComments | trim }}
{{- if $body }}

> {{ $body | trunc 280 }}
{{- end }}
`))
}

func renderTemplate(name string, data interface{}) (string, error) {
	var output bytes.Buffer
	t := masterTemplate.Lookup(name)
	if t == nil {
		return "", errors.Errorf("no template named %s", name)
	}

	if err := t.Execute(&output, data); err != nil {
		return "", errors.Wrap(err, "could not execute template")
	}

	return strings.TrimSpace(output.String()), nil
}
