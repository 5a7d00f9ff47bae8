package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamauresta/agent-harbor/internal/domain"
)

func writePersonaFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadPersonas(t *testing.T) {
	dir := t.TempDir()
	writePersonaFile(t, dir, "acme.yaml", `client_id: acme
name: Harbor
business_name: Acme Soap Co
system_prompt: You help Acme customers.
tier: pro
chatwoot_inbox_id: 7
human_escalation: true
retrieval_enabled: true
`)
	writePersonaFile(t, dir, "globex.yaml", `client_id: globex
system_prompt: You help Globex customers.
retrieval_client_id: shared-kb
`)
	writePersonaFile(t, dir, "notes.txt", "not a persona")

	reg, err := LoadPersonas(dir)
	require.NoError(t, err)
	assert.Len(t, reg.All(), 2)

	acme, err := reg.Resolve("acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Soap Co", acme.BusinessName)
	assert.True(t, acme.HumanEscalation)
	assert.True(t, acme.UsesFallbackModel())
	assert.Equal(t, "acme", acme.KnowledgeClientID())

	globex, err := reg.Resolve("globex")
	require.NoError(t, err)
	assert.Equal(t, "starter", globex.Tier)
	assert.False(t, globex.UsesFallbackModel())
	assert.Equal(t, "en", globex.Language)
	assert.Equal(t, 3000, globex.RetrievalMaxChars)
	assert.Equal(t, "shared-kb", globex.KnowledgeClientID())
}

func TestLoadPersonas_UnknownClient(t *testing.T) {
	dir := t.TempDir()
	writePersonaFile(t, dir, "acme.yaml", "client_id: acme\nsystem_prompt: hi\n")

	reg, err := LoadPersonas(dir)
	require.NoError(t, err)

	_, err = reg.Resolve("nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersonaNotFound)
}

func TestLoadPersonas_ResolveInbox(t *testing.T) {
	dir := t.TempDir()
	writePersonaFile(t, dir, "acme.yaml", "client_id: acme\nsystem_prompt: hi\nchatwoot_inbox_id: 7\n")

	reg, err := LoadPersonas(dir)
	require.NoError(t, err)

	assert.Equal(t, "acme", reg.ResolveInbox(7, "fallback"))
	assert.Equal(t, "fallback", reg.ResolveInbox(99, "fallback"))
}

func TestLoadPersonas_Invalid(t *testing.T) {
	t.Run("missing client_id", func(t *testing.T) {
		dir := t.TempDir()
		writePersonaFile(t, dir, "bad.yaml", "system_prompt: hi\n")
		_, err := LoadPersonas(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "client_id")
	})

	t.Run("missing system_prompt", func(t *testing.T) {
		dir := t.TempDir()
		writePersonaFile(t, dir, "bad.yaml", "client_id: acme\n")
		_, err := LoadPersonas(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "system_prompt")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		writePersonaFile(t, dir, "bad.yaml", "client_id: [unclosed\n")
		_, err := LoadPersonas(dir)
		require.Error(t, err)
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := LoadPersonas(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})
}
