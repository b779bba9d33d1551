package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRoleProfilesDefaults(t *testing.T) {
	profiles, err := LoadRoleProfiles(t.TempDir())
	require.NoError(t, err)

	for _, role := range []string{RoleMaster, RoleResearcher, RoleModeler, RoleWriter} {
		assert.NotEmpty(t, profiles[role].SystemPrompt, "role %s", role)
	}
}

func TestLoadRoleProfilesOverlay(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, ConfigDirName)
	require.NoError(t, os.MkdirAll(configDir, 0o755))

	rolesYAML := `roles:
  writer:
    system_prompt: "Write terse papers."
    provider:
      kind: gemini
  researcher:
    provider:
      model: claude-opus-4-20250514
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, rolesFileName), []byte(rolesYAML), 0o644))

	profiles, err := LoadRoleProfiles(dir)
	require.NoError(t, err)

	assert.Equal(t, "Write terse papers.", profiles[RoleWriter].SystemPrompt)
	assert.Equal(t, "gemini", profiles[RoleWriter].Provider.Kind)
	// Researcher keeps the default prompt but gains a model override.
	assert.NotEmpty(t, profiles[RoleResearcher].SystemPrompt)
	assert.Equal(t, "claude-opus-4-20250514", profiles[RoleResearcher].Provider.Model)
	// Untouched roles keep full defaults.
	assert.True(t, profiles[RoleModeler].Provider.IsZero())
}

func TestLoadRoleProfilesRejectsBadProvider(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, ConfigDirName)
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, rolesFileName),
		[]byte("roles:\n  writer:\n    provider:\n      kind: grok\n"), 0o644))

	_, err := LoadRoleProfiles(dir)
	require.Error(t, err)
}
