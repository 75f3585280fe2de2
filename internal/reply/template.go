package reply

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"jokebot/internal/platform"
)

// TemplateData is what reply templates can reference.
type TemplateData struct {
	Joke      string
	Author    string
	Permalink string
	Body      string
	ID        string
}

// Template renders reply text from the configured template lines.
type Template struct {
	t *template.Template
}

func ParseTemplate(lines []string) (*Template, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("reply template: no lines")
	}
	t, err := template.New("reply").Option("missingkey=error").Parse(strings.Join(lines, "\n"))
	if err != nil {
		return nil, fmt.Errorf("reply template: %w", err)
	}
	return &Template{t: t}, nil
}

func (t *Template) Render(joke string, target platform.Target) (string, error) {
	var buf bytes.Buffer
	err := t.t.Execute(&buf, TemplateData{
		Joke:      joke,
		Author:    target.Author,
		Permalink: target.Permalink,
		Body:      target.Body,
		ID:        target.ID,
	})
	if err != nil {
		return "", fmt.Errorf("render reply: %w", err)
	}
	return buf.String(), nil
}
