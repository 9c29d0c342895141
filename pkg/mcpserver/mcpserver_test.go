package mcpserver_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/atomicobject/fsminer/pkg/mcpserver"
	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/miner/engine"
	"github.com/atomicobject/fsminer/pkg/miner/provider"
	"github.com/atomicobject/fsminer/pkg/store/sqlite"
	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) *engine.Controller {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	policy := &miner.Policy{FSMTime: provider.StatModTime, StoreMTime: store.MTime}
	extractor := func(u uri.URI, b *miner.Builder, cancel *miner.CancelToken) bool { return true }
	return engine.New(p, policy, store, 4, extractor)
}

func callTool(t *testing.T, name string, args map[string]interface{}, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
	resp, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	text, ok := resp.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, resp.IsError
}

func TestStatusToolReportsInitialPhase(t *testing.T) {
	ctl := newTestController(t)
	tool := mcpserver.StatusTool(ctl)

	text, isErr := callTool(t, "miner_status", map[string]interface{}{}, tool)
	require.False(t, isErr)

	var resp mcpserver.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, "not_started", resp.Phase)
}

func TestAddAndRemoveRootTools(t *testing.T) {
	ctl := newTestController(t)
	root := t.TempDir()

	addTool := mcpserver.AddRootTool(ctl)
	text, isErr := callTool(t, "miner_add_root", map[string]interface{}{"path": root}, addTool)
	require.False(t, isErr)
	assert.Contains(t, text, root)

	removeTool := mcpserver.RemoveRootTool(ctl)
	text, isErr = callTool(t, "miner_remove_root", map[string]interface{}{"path": root}, removeTool)
	require.False(t, isErr)
	assert.Contains(t, text, root)
}

func TestAddRootRequiresPath(t *testing.T) {
	ctl := newTestController(t)
	tool := mcpserver.AddRootTool(ctl)

	_, isErr := callTool(t, "miner_add_root", map[string]interface{}{}, tool)
	assert.True(t, isErr)
}

func TestPauseResumeStopTools(t *testing.T) {
	ctl := newTestController(t)

	text, isErr := callTool(t, "miner_pause", map[string]interface{}{}, mcpserver.PauseTool(ctl))
	require.False(t, isErr)
	assert.Equal(t, "paused", text)

	text, isErr = callTool(t, "miner_resume", map[string]interface{}{}, mcpserver.ResumeTool(ctl))
	require.False(t, isErr)
	assert.Equal(t, "resumed", text)

	text, isErr = callTool(t, "miner_stop", map[string]interface{}{}, mcpserver.StopTool(ctl))
	require.False(t, isErr)
	assert.Equal(t, "stopped", text)
}
