package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadModels_ParsesEntries(t *testing.T) {
	path := writeManifest(t, `{
		"models": [
			{
				"model": "Todo",
				"route": "/todos",
				"collection": "todos",
				"strategy": "owner",
				"ownerField": "ownerId",
				"softDeleteField": "deletedAt",
				"operations": ["insert", "update", "delete"],
				"hiddenFields": ["secret"]
			},
			{
				"model": "Invoice",
				"collection": "invoices",
				"strategy": "model"
			},
			{
				"model": "Announcement",
				"collection": "announcements",
				"strategy": "broadcast",
				"adminOnly": true
			}
		]
	}`)

	entries, err := LoadModels(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	todo := entries[0]
	assert.Equal(t, "Todo", todo.Model)
	assert.Equal(t, "todos", todo.Collection)
	assert.Equal(t, domain.StrategyOwner, todo.Realtime.Strategy)
	assert.Equal(t, "ownerId", todo.Realtime.OwnerField)
	assert.Equal(t, "deletedAt", todo.Realtime.SoftDeleteField)
	assert.Equal(t, []domain.OperationKind{domain.OpInsert, domain.OpUpdate, domain.OpDelete}, todo.Realtime.Operations)
	assert.Equal(t, []string{"secret"}, todo.Rules.HiddenFields)

	assert.Equal(t, domain.StrategyModel, entries[1].Realtime.Strategy)
	assert.True(t, entries[2].Rules.AdminOnly)
}

func TestLoadModels_DefaultsToOwnerStrategyRequiringField(t *testing.T) {
	path := writeManifest(t, `{"models": [{"model": "Todo", "collection": "todos"}]}`)
	_, err := LoadModels(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ownerField")
}

func TestLoadModels_RejectsDuplicateCollections(t *testing.T) {
	path := writeManifest(t, `{"models": [
		{"model": "Todo", "collection": "todos", "strategy": "model"},
		{"model": "Task", "collection": "todos", "strategy": "model"}
	]}`)
	_, err := LoadModels(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestLoadModels_RejectsUnknownStrategyAndOperation(t *testing.T) {
	path := writeManifest(t, `{"models": [{"model": "Todo", "collection": "todos", "strategy": "fanout"}]}`)
	_, err := LoadModels(path)
	assert.Error(t, err)

	path = writeManifest(t, `{"models": [{"model": "Todo", "collection": "todos", "strategy": "model", "operations": ["upsert"]}]}`)
	_, err = LoadModels(path)
	assert.Error(t, err)
}

func TestLoadModels_RejectsCustomStrategyInManifest(t *testing.T) {
	path := writeManifest(t, `{"models": [{"model": "Message", "collection": "messages", "strategy": "custom"}]}`)
	_, err := LoadModels(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom strategy")
}

func TestLoadModels_MissingFile(t *testing.T) {
	_, err := LoadModels(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
