package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()

	apiFile := filepath.Join(dir, "api_version.ts")
	require.NoError(t, os.WriteFile(apiFile, []byte(`export const API_VERSION = "1.2.3";`), 0o644))

	uiFile := filepath.Join(dir, "ui_version.ts")
	require.NoError(t, os.WriteFile(uiFile, []byte(`export const UI_VERSION = "0.9.0";`), 0o644))

	registryJSON := `[
	  {
	    "id": "global:api-version",
	    "displayName": "API",
	    "type": "api",
	    "updateStrategy": "linked",
	    "files": [{"path": ` + quote(apiFile) + `, "pattern": "API_VERSION = \"([0-9.]+)\""}],
	    "displayInUi": true
	  },
	  {
	    "id": "ui:dashboard",
	    "displayName": "Dashboard",
	    "type": "ui",
	    "updateStrategy": "independent",
	    "files": [{"path": ` + quote(uiFile) + `, "pattern": "UI_VERSION = \"([0-9.]+)\""}],
	    "displayInUi": false
	  }
	]`

	regPath := filepath.Join(dir, "versions.json")
	require.NoError(t, os.WriteFile(regPath, []byte(registryJSON), 0o644))

	reg, err := LoadRegistry(regPath)
	require.NoError(t, err)
	return reg, apiFile
}

func quote(s string) string {
	return `"` + s + `"`
}

func TestLoadExtractsCurrentVersions(t *testing.T) {
	reg, _ := writeTestRegistry(t)

	api, ok := reg.Get("global:api-version")
	require.True(t, ok)
	assert.Equal(t, "1.2.3", api.CurrentVersion)

	ui, ok := reg.Get("ui:dashboard")
	require.True(t, ok)
	assert.Equal(t, "0.9.0", ui.CurrentVersion)

	assert.Len(t, reg.Displayable(), 1)
}

func TestTargetedBumpRewritesFile(t *testing.T) {
	reg, apiFile := writeTestRegistry(t)

	res, err := reg.Bump("global:api-version", BumpPatch)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", res.OldVersion)
	assert.Equal(t, "1.2.4", res.NewVersion)
	assert.Equal(t, []string{"global:api-version"}, res.Affected)

	data, err := os.ReadFile(apiFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `API_VERSION = "1.2.4"`)

	// Reload re-extracts the bumped version from disk
	require.NoError(t, reg.Reload())
	api, _ := reg.Get("global:api-version")
	assert.Equal(t, "1.2.4", api.CurrentVersion)
}

func TestGlobalBumpOnlyTouchesLinked(t *testing.T) {
	reg, _ := writeTestRegistry(t)

	res, err := reg.BumpAll(BumpMinor)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", res.NewVersion)
	assert.Equal(t, []string{"global:api-version"}, res.Affected)

	ui, _ := reg.Get("ui:dashboard")
	assert.Equal(t, "0.9.0", ui.CurrentVersion)
}

func TestBumpUnknownEntity(t *testing.T) {
	reg, _ := writeTestRegistry(t)

	_, err := reg.Bump("nope", BumpPatch)
	assert.Error(t, err)

	_, err = reg.Bump("global:api-version", "gigantic")
	assert.Error(t, err)
}
