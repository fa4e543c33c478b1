package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCatalogFile(t *testing.T, contents Catalog) string {
	t.Helper()
	data, err := json.Marshal(contents)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadEmptyPathReturnsEmptyCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.Empty(t, c)
}

func TestLoadDecodesFile(t *testing.T) {
	path := writeCatalogFile(t, Catalog{
		"H6159": {"colorModes": []string{"color", "colorTemp"}, "supportsBrightness": true},
	})

	c, err := Load(path)
	require.NoError(t, err)

	raw, ok := c.Lookup("H6159")
	require.True(t, ok)
	require.Equal(t, true, raw["supportsBrightness"])
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadInvalidJSONErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyDefaultsPrefersExistingRaw(t *testing.T) {
	c := Catalog{"H6159": {"supportsBrightness": true}}
	raw := map[string]any{"colorModes": []string{"color"}}

	got := c.ApplyDefaults("H6159", raw)
	require.Equal(t, raw, got)
}

func TestApplyDefaultsFallsBackToCatalog(t *testing.T) {
	c := Catalog{"H6159": {"supportsBrightness": true}}

	got := c.ApplyDefaults("H6159", nil)
	require.Equal(t, c["H6159"], got)
}

func TestApplyDefaultsReturnsNilWhenNoMatch(t *testing.T) {
	c := Catalog{}
	got := c.ApplyDefaults("unknown-model", nil)
	require.Nil(t, got)
}
