package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/vtask/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		want     slog.Level
		wantName string
		wantErr  bool
	}{
		{"", slog.LevelInfo, "info", false},
		{"INFO", slog.LevelInfo, "info", false},
		{"debug", slog.LevelDebug, "debug", false},
		{"warning", slog.LevelWarn, "warn", false},
		{"err", slog.LevelError, "error", false},
		{"verbose", slog.LevelInfo, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			level, name, err := parseLogLevel(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, level)
			assert.Equal(t, tc.wantName, name)
		})
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"init", "replay", "watch", "tasks", "audit", "agent-prompt"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	cfgFlag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

// run executes the CLI with args and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vtask.yaml")

	out, err := run(t, "init", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+cfgPath)

	cfg, err := config.LoadFromFile(cfgPath)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	info, err := os.Stat(filepath.Join(dir, ".vtask", "calls"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = run(t, "init", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = run(t, "init", "--config", cfgPath, "--force")
	assert.NoError(t, err)
}

const (
	createReply  = `{"intent":"create_task","tasks":[{"description":"call the bank","date":"2099-01-05","time":"09:00"}],"confirmed":false,"reasoning":"new reminder"}`
	confirmReply = `{"intent":"create_task","tasks":[],"confirmed":true,"reasoning":"caller said yes"}`
)

func writeReplayFixture(t *testing.T, dir string) (cfgPath, transcriptPath, repliesPath string) {
	t.Helper()
	cfgPath = filepath.Join(dir, "vtask.yaml")
	require.NoError(t, config.GenerateDefault().SaveToFile(cfgPath))

	transcriptPath = filepath.Join(dir, "call.ndjson")
	lines := []string{
		`{"role":"user","text":"Remind me on January 5th 2099 at 9 to call the bank"}`,
		`{"role":"assistant","text":"Sure. Do you confirm a reminder on January 5th at 9:00?"}`,
		`{"role":"assistant","text":"[CONFIRM_TASK] Ask the caller for explicit confirmation"}`,
		`{"role":"user","text":"Yes"}`,
	}
	require.NoError(t, os.WriteFile(transcriptPath, []byte(strings.Join(lines, "\n")+"\n"), 0600))

	repliesPath = filepath.Join(dir, "replies.ndjson")
	replies := []string{createReply, createReply, confirmReply}
	require.NoError(t, os.WriteFile(repliesPath, []byte(strings.Join(replies, "\n")+"\n"), 0600))
	return cfgPath, transcriptPath, repliesPath
}

func TestReplayTasksAndAudit(t *testing.T) {
	dir := t.TempDir()
	cfgPath, transcriptPath, repliesPath := writeReplayFixture(t, dir)

	out, err := run(t, "replay", transcriptPath,
		"--config", cfgPath,
		"--replies", repliesPath,
		"--phone", "+390612345",
		"--name", "Maria",
		"--call-id", "call-42")
	require.NoError(t, err)
	assert.Contains(t, out, "Replaying 4 turns as call call-42")
	assert.Contains(t, out, "turn 0: confirm_request")
	assert.Contains(t, out, "turn 3: tasks_created")
	assert.Contains(t, out, "[TASK_CREATED]")
	assert.Contains(t, out, "Done: 1 committed operation(s), final stage completed")
	assert.NotContains(t, out, "turn 1:", "a pass that changes nothing is not printed")

	out, err = run(t, "tasks", "--config", cfgPath, "--phone", "+390612345")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Reminder: call the bank")
	assert.Contains(t, out, "05/01/2099 at 09:00")

	out, err = run(t, "tasks", "--config", cfgPath, "--phone", "+399999999")
	require.NoError(t, err)
	assert.Contains(t, out, "No active reminders.")

	out, err = run(t, "audit", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "call call-42")
	assert.Contains(t, out, "no_intent -> confirmation_requested [confirm_request]")
	assert.Contains(t, out, "3 pass(es), 1 commit(s)")
	assert.NotContains(t, out, "waiting for confirmation")

	out, err = run(t, "agent-prompt", "--config", cfgPath, "--phone", "+390612345")
	require.NoError(t, err)
	assert.Contains(t, out, "## REMINDERS AND TASKS")
	assert.Contains(t, out, "call the bank")
}

func TestReplayReportsPendingConfirmation(t *testing.T) {
	dir := t.TempDir()
	cfgPath, transcriptPath, _ := writeReplayFixture(t, dir)

	repliesPath := filepath.Join(dir, "pending.ndjson")
	require.NoError(t, os.WriteFile(repliesPath, []byte(createReply+"\n"+createReply+"\n"+createReply+"\n"), 0600))

	out, err := run(t, "replay", transcriptPath, "--config", cfgPath, "--replies", repliesPath, "--phone", "+39", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "turn 1: none")
	assert.Contains(t, out, "Done: 0 committed operation(s), final stage confirmation_requested")
	assert.Contains(t, out, "Warning: the call ended while waiting for the caller to confirm (create_task)")

	out, err = run(t, "audit", filepath.Join(dir, ".vtask", "audit.ndjson"))
	require.NoError(t, err)
	assert.Contains(t, out, "Calls left waiting for confirmation:")
}

func TestReplayMissingTranscript(t *testing.T) {
	dir := t.TempDir()
	cfgPath, _, repliesPath := writeReplayFixture(t, dir)

	_, err := run(t, "replay", filepath.Join(dir, "missing.ndjson"), "--config", cfgPath, "--replies", repliesPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open transcript")
}

func TestInvalidLogLevelFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath, _, _ := writeReplayFixture(t, dir)

	_, err := run(t, "tasks", "--config", cfgPath, "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported log level")
}
