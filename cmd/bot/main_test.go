package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
logging: {level: info, console: false}
rates: {comments: 5, mentions: 60, trello: 60, reply: 10, io: 10, uptime: 3600}
reddit:
  user_agent: jokebot/1.0
  username: jokebot
  subreddits: [jokes]
trello:
  boards:
    - {id: B1, list: all}
phrases: [joke]
reply_template: ["{{.Joke}}"]
`

func TestCheckPrintsPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check", "--config", path, "--env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, rootCmd.Execute())

	s := out.String()
	assert.Contains(t, s, "config ok")
	assert.Contains(t, s, "comments stream: every 5s")
	assert.Contains(t, s, "group every 10s: [reply io]")
	assert.Contains(t, s, "group every 1m0s: [mentions trello]")
	assert.Contains(t, s, "group every 1h0m0s: [uptime]")
}
