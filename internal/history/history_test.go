// Copyright 2025 The Flowwright Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
	"github.com/flowwright/flowwright/pkg/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSession(id string) *Session {
	return &Session{
		ID:           id,
		Prompt:       "When a webhook fires, post to Slack",
		WorkflowName: "Webhook to Slack",
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-5",
		Success:      true,
		Message:      `generated workflow "Webhook to Slack" with 2 nodes`,
		Turns:        3,
		RetriesUsed:  1,
		Tokens:       llm.TokenUsage{InputTokens: 1200, OutputTokens: 300, TotalTokens: 1500},
		Duration:     4 * time.Second,
		WorkflowJSON: []byte(`{"name": "Webhook to Slack", "nodes": []}`),
		Transcript: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: "You are a workflow engineer."},
			{Role: llm.MessageRoleUser, Content: "When a webhook fires, post to Slack"},
			{Role: llm.MessageRoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "add_node", Arguments: `{"type": "n8n-nodes-base.webhook", "name": "Webhook"}`},
			}},
			{Role: llm.MessageRoleTool, Content: `{"success": true}`, ToolCallID: "c1", Name: "add_node"},
			{Role: llm.MessageRoleAssistant, Content: "Done."},
		},
		CreatedAt: time.Now(),
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), sampleSession("s1")))
}

func TestOpen_MissingPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := sampleSession("3f2a9c1e-0001-4000-8000-000000000001")
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Get(ctx, want.ID)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Prompt, got.Prompt)
	assert.Equal(t, want.WorkflowName, got.WorkflowName)
	assert.Equal(t, want.Provider, got.Provider)
	assert.Equal(t, want.Model, got.Model)
	assert.True(t, got.Success)
	assert.False(t, got.RequiresHumanInput)
	assert.Equal(t, 3, got.Turns)
	assert.Equal(t, 1, got.RetriesUsed)
	assert.Equal(t, want.Tokens, got.Tokens)
	assert.Equal(t, want.Duration, got.Duration)
	assert.JSONEq(t, string(want.WorkflowJSON), string(got.WorkflowJSON))

	// The transcript round-trips exactly, tool calls included.
	require.Len(t, got.Transcript, 5)
	assert.Equal(t, want.Transcript, got.Transcript)
	require.Len(t, got.Transcript[2].ToolCalls, 1)
	assert.Equal(t, "add_node", got.Transcript[2].ToolCalls[0].Name)
	assert.Equal(t, "c1", got.Transcript[3].ToolCallID)
}

func TestStore_SaveReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sess := sampleSession("s1")
	require.NoError(t, store.Save(ctx, sess))

	sess.Success = false
	sess.Message = "validation failed"
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, "validation failed", got.Message)

	summaries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, summaries, 1, "upsert must not duplicate the session")
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "does-not-exist")
	require.Error(t, err)

	var notFound *pkgerrors.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "session", notFound.Resource)
}

func TestStore_GetByPrefix(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("3f2a9c1e-aaaa-4000-8000-000000000001")))
	require.NoError(t, store.Save(ctx, sampleSession("77119c1e-bbbb-4000-8000-000000000002")))

	got, err := store.Get(ctx, "3f2a")
	require.NoError(t, err)
	assert.Equal(t, "3f2a9c1e-aaaa-4000-8000-000000000001", got.ID)

	// Too short to be treated as a prefix.
	_, err = store.Get(ctx, "3f2")
	var notFound *pkgerrors.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestStore_GetByPrefixAmbiguous(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("3f2a9c1e-aaaa-4000-8000-000000000001")))
	require.NoError(t, store.Save(ctx, sampleSession("3f2a9c1e-bbbb-4000-8000-000000000002")))

	_, err := store.Get(ctx, "3f2a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestStore_List(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"s1", "s2", "s3"} {
		sess := sampleSession(id)
		sess.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		sess.Success = id != "s2"
		require.NoError(t, store.Save(ctx, sess))
	}

	summaries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	// Newest first.
	assert.Equal(t, "s3", summaries[0].ID)
	assert.Equal(t, "s1", summaries[2].ID)
	assert.Equal(t, 1500, summaries[0].TotalTokens)

	summaries, err = store.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	failed := false
	summaries, err = store.List(ctx, Filter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "s2", summaries[0].ID)
}

func TestStore_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := sampleSession("old")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Save(ctx, old))

	recent := sampleSession("recent")
	recent.CreatedAt = time.Now()
	require.NoError(t, store.Save(ctx, recent))

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get(ctx, "old")
	var notFound *pkgerrors.NotFoundError
	require.True(t, errors.As(err, &notFound))

	_, err = store.Get(ctx, "recent")
	require.NoError(t, err)
}

func TestTranscriptCodec(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.MessageRoleUser, Content: "hello"},
		{Role: llm.MessageRoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "a", Name: "connect_nodes", Arguments: `{"source": "A", "target": "B"}`},
			{ID: "b", Name: "get_current_workflow", Arguments: "{}"},
		}},
	}

	data, err := encodeTranscript(messages)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role":"assistant"`)
	assert.Contains(t, string(data), `"tool_calls"`)

	got, err := decodeTranscript(data)
	require.NoError(t, err)
	assert.Equal(t, messages, got)
}

func TestTranscriptCodec_Empty(t *testing.T) {
	data, err := encodeTranscript(nil)
	require.NoError(t, err)

	got, err := decodeTranscript(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}
