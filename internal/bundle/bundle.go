// Package bundle resolves HostInfo and ExtractedBundle metadata (public
// verification key, version, code-signing identity) from a bundle or
// package directory's manifest, the Go-native stand-in for reading an
// Info.plist and a Contents/_CodeSignature entry off disk.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"installerd/internal/codesign"
)

// ManifestFile is the name of the descriptor installerd reads at a
// bundle's root to learn its identifier, version, and verification keys.
const ManifestFile = "installer-manifest.json"

// manifest is the on-disk shape of ManifestFile.
type manifest struct {
	Identifier string              `json:"identifier"`
	Version    string              `json:"version"`
	PublicKey  string              `json:"public_key,omitempty"`
	Signature  *codesign.Signature `json:"signature,omitempty"`
	IsPackage  bool                `json:"is_package,omitempty"`
}

// Info is the resolved metadata for a bundle or package directory:
// HostInfo when it describes the currently installed host, or the "new"
// side of ExtractedBundle when it describes what was just extracted.
type Info struct {
	Path       string
	Identifier string
	Version    string
	PublicKey  string
	Signature  *codesign.Signature
	IsPackage  bool
}

// HasPublicKey reports whether the bundle carries a verification key at
// all; the validator rejects package installs against a host with none.
func (i *Info) HasPublicKey() bool {
	return i != nil && i.PublicKey != ""
}

// Resolve reads ManifestFile from path (a bundle directory, or the
// directory a package install source lives in) and returns its metadata.
func Resolve(path string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("bundle: read manifest at %s: %w", path, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("bundle: decode manifest at %s: %w", path, err)
	}
	if m.Identifier == "" {
		return nil, fmt.Errorf("bundle: manifest at %s has no identifier", path)
	}

	return &Info{
		Path:       path,
		Identifier: m.Identifier,
		Version:    m.Version,
		PublicKey:  m.PublicKey,
		Signature:  m.Signature,
		IsPackage:  m.IsPackage,
	}, nil
}

// FindInstallSource locates the install source within an extraction
// directory: the first top-level subdirectory carrying ManifestFile, or
// else extractedPath itself if it carries one. The resolved Info's
// IsPackage field says whether it describes a package rather than a bundle.
// Returns an error if no such entry exists, matching "resolve the install
// source ... If none, reject."
func FindInstallSource(extractedPath string) (*Info, error) {
	entries, err := os.ReadDir(extractedPath)
	if err != nil {
		return nil, fmt.Errorf("bundle: read extracted directory %s: %w", extractedPath, err)
	}

	for _, e := range entries {
		candidate := filepath.Join(extractedPath, e.Name())
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(candidate, ManifestFile)); err == nil {
			return Resolve(candidate)
		}
	}

	if _, err := os.Stat(filepath.Join(extractedPath, ManifestFile)); err == nil {
		return Resolve(extractedPath)
	}

	return nil, fmt.Errorf("bundle: no install source found under %s", extractedPath)
}
