package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceStore_RoundTrip(t *testing.T) {
	// Setup
	path := filepath.Join(t.TempDir(), "nested", "prefs.toml")
	store, err := NewPreferenceStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	// Test
	_, found, err := store.GetPreference(ctx, "bgbye_theme")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetPreference(ctx, "bgbye_theme", "true"))
	require.NoError(t, store.SetPreference(ctx, "other", "x"))

	// Verify
	v, found, err := store.GetPreference(ctx, "bgbye_theme")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "true", v)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[preferences]")
	assert.Contains(t, string(data), "bgbye_theme")
}

func TestPreferenceStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	first, err := NewPreferenceStore(path)
	require.NoError(t, err)
	require.NoError(t, first.SetPreference(context.Background(), "bgbye_theme", "false"))

	second, err := NewPreferenceStore(path)
	require.NoError(t, err)
	v, found, err := second.GetPreference(context.Background(), "bgbye_theme")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "false", v)
}

func TestPreferenceStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[[ nope"), 0o644))
	store, err := NewPreferenceStore(path)
	require.NoError(t, err)

	_, _, err = store.GetPreference(context.Background(), "bgbye_theme")
	assert.Error(t, err)
}

func TestNewPreferenceStore_RequiresPath(t *testing.T) {
	_, err := NewPreferenceStore("")
	assert.Error(t, err)
}
