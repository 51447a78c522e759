package transcript

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoleAcceptsUserAlias(t *testing.T) {
	var turn Turn
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","text":"hi"}`), &turn))
	assert.Equal(t, RoleCaller, turn.Role)

	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","text":"hello"}`), &turn))
	assert.Equal(t, RoleAssistant, turn.Role)

	assert.Error(t, json.Unmarshal([]byte(`{"role":"narrator","text":"x"}`), &turn))
}

func TestIsSystemTagged(t *testing.T) {
	assert.True(t, IsSystemTagged("[TASK_CREATED] The reminder was created"))
	assert.True(t, IsSystemTagged("ok [SYSTEM_INSTRUCTION] do this"))
	assert.False(t, IsSystemTagged("yes, go ahead"))
}

func TestAfterAndTail(t *testing.T) {
	turns := []Turn{
		{Role: RoleCaller, Text: "a"},
		{Role: RoleAssistant, Text: "b"},
		{Role: RoleCaller, Text: "c"},
	}

	assert.Len(t, After(turns, -1), 3)
	assert.Equal(t, []Turn{turns[2]}, After(turns, 1))
	assert.Empty(t, After(turns, 2))
	assert.Empty(t, After(turns, 10))

	assert.Equal(t, turns[1:], Tail(turns, 2))
	assert.Len(t, Tail(turns, 12), 3)
}

func TestLastCallerIndexSkipsSystemTagged(t *testing.T) {
	turns := []Turn{
		{Role: RoleCaller, Text: "yes"},
		{Role: RoleCaller, Text: "[TASK_CREATED] done"},
		{Role: RoleAssistant, Text: "Anything else?"},
	}
	assert.Equal(t, 0, LastCallerIndex(turns))
	assert.Equal(t, -1, LastCallerIndex([]Turn{{Role: RoleAssistant, Text: "hello"}}))
	assert.Equal(t, -1, LastCallerIndex(nil))
}

func TestFormat(t *testing.T) {
	out := Format([]Turn{
		{Role: RoleCaller, Text: " remind me tomorrow at 9 "},
		{Role: RoleAssistant, Text: "Confirm?"},
		{Role: RoleCaller, Text: "[SYSTEM_INSTRUCTION] be brief"},
	})
	assert.Equal(t, "CALLER: remind me tomorrow at 9\nASSISTANT: Confirm?\nSYSTEM: [SYSTEM_INSTRUCTION] be brief", out)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.ndjson")
	content := `{"role":"user","text":"remind me tomorrow at 9 to call the bank","timestamp":"2026-10-19T10:00:00Z"}
{"role":"assistant","text":"Confirm?"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	turns, err := Load(path, discardLogger())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, RoleCaller, turns[0].Role)
	assert.Equal(t, 2026, turns[0].Timestamp.Year())

	_, err = Load(filepath.Join(t.TempDir(), "missing.ndjson"), discardLogger())
	assert.Error(t, err)
}

func TestWatchReportsGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(`{"role":"caller","text":"hello"}`+"\n"), 0600))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var sizes []int
	grew := make(chan struct{}, 10)

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, discardLogger(), func(turns []Turn) {
			mu.Lock()
			sizes = append(sizes, len(turns))
			mu.Unlock()
			grew <- struct{}{}
		})
	}()

	select {
	case <-grew:
	case <-ctx.Done():
		t.Fatal("initial transcript not reported")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"role":"assistant","text":"hi"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case <-grew:
	case <-ctx.Done():
		t.Fatal("growth not reported")
	}

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, sizes)
}
