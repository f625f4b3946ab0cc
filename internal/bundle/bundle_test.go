package bundle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir string, m manifest) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644))
}

func TestResolve_ReadsManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, manifest{Identifier: "com.example.app", Version: "1.2.3", PublicKey: "abc"})

	info, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", info.Identifier)
	assert.Equal(t, "1.2.3", info.Version)
	assert.True(t, info.HasPublicKey())
}

func TestResolve_RejectsMissingIdentifier(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, manifest{Version: "1.0.0"})

	_, err := Resolve(dir)
	assert.Error(t, err)
}

func TestResolve_RejectsMissingManifest(t *testing.T) {
	_, err := Resolve(t.TempDir())
	assert.Error(t, err)
}

func TestFindInstallSource_LocatesNestedBundle(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "Example.app")
	writeManifest(t, nested, manifest{Identifier: "com.example.app", Version: "2.0.0"})

	info, err := FindInstallSource(root)
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", info.Identifier)
	assert.Equal(t, nested, info.Path)
}

func TestFindInstallSource_LocatesRootManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, manifest{Identifier: "com.example.pkg", IsPackage: true})

	info, err := FindInstallSource(root)
	require.NoError(t, err)
	assert.True(t, info.IsPackage)
}

func TestFindInstallSource_RejectsEmptyExtraction(t *testing.T) {
	_, err := FindInstallSource(t.TempDir())
	assert.Error(t, err)
}
