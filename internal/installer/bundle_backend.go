package installer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// dirPermissions matches the teacher's DirPermissions convention for
// directories this package creates.
const dirPermissions = 0755

// BundleBackend replaces a directory-tree application bundle in place.
// Stage 1 backs the host bundle up and preflights free disk space; stage
// 2 swaps the directories (the host bundle is removed, then the new one is
// moved into its place, so the swap is not atomic); stage 3 drops the
// backup.
type BundleBackend struct {
	hostBundlePath string
	newBundlePath  string
	backupDir      string

	backedUp  bool
	swapped   bool
	finalized bool
}

// NewBundleBackend constructs a backend that will replace hostBundlePath
// with the contents at newBundlePath (the extracted install source),
// keeping a backup under backupDir for the duration of the install.
func NewBundleBackend(hostBundlePath, newBundlePath, backupDir string) *BundleBackend {
	return &BundleBackend{hostBundlePath: hostBundlePath, newBundlePath: newBundlePath, backupDir: backupDir}
}

func (b *BundleBackend) CanInstallSilently() bool   { return true }
func (b *BundleBackend) DisplaysUserProgress() bool { return false }

// PerformFirstStage backs up the host bundle and verifies there is enough
// free space alongside it to hold a second copy, the disk-space preflight
// the teacher's download path lacked.
func (b *BundleBackend) PerformFirstStage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	size, err := dirSize(b.hostBundlePath)
	if err != nil {
		return fmt.Errorf("installer: measure host bundle size: %w", err)
	}
	if err := CheckDiskSpace(nil, filepath.Dir(b.hostBundlePath), size); err != nil {
		return err
	}

	if err := os.MkdirAll(b.backupDir, dirPermissions); err != nil {
		return fmt.Errorf("installer: create backup directory: %w", err)
	}
	if err := copyTree(b.hostBundlePath, b.backupDir); err != nil {
		return fmt.Errorf("installer: back up host bundle: %w", err)
	}
	b.backedUp = true
	return nil
}

// PerformSecondStage performs the swap: the backed-up host bundle is
// removed and the staged new bundle is moved into its place. allowingUI
// is unused here; a bundle swap never prompts.
func (b *BundleBackend) PerformSecondStage(ctx context.Context, allowingUI bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.backedUp {
		return fmt.Errorf("installer: second stage requested before first stage completed")
	}

	if err := os.RemoveAll(b.hostBundlePath); err != nil {
		return fmt.Errorf("installer: remove host bundle: %w", err)
	}
	if err := moveOrCopyTree(b.newBundlePath, b.hostBundlePath); err != nil {
		if restoreErr := copyTree(b.backupDir, b.hostBundlePath); restoreErr != nil {
			return fmt.Errorf("installer: install new bundle failed (%v) and restore failed (%w)", err, restoreErr)
		}
		return fmt.Errorf("installer: install new bundle: %w", err)
	}
	b.swapped = true
	return nil
}

// PerformThirdStage drops the backup now that the swap is confirmed.
func (b *BundleBackend) PerformThirdStage(ctx context.Context) error {
	if err := os.RemoveAll(b.backupDir); err != nil {
		return fmt.Errorf("installer: remove backup directory: %w", err)
	}
	b.finalized = true
	return nil
}

// InstallationPathFor implements Handle; a bundle swap always installs
// back at the host's own path.
func (b *BundleBackend) InstallationPathFor() string { return b.hostBundlePath }

// Cleanup restores the host bundle from its backup if the swap completed
// in stage 2 but stage 3 never confirmed it, the rollback the
// backup-before-replace guarantee exists for. If the swap never happened,
// or stage 3 already confirmed it, there is nothing to restore and this
// only discards whatever backup remains. Safe to call multiple times.
func (b *BundleBackend) Cleanup() error {
	if b.swapped && !b.finalized {
		if err := os.RemoveAll(b.hostBundlePath); err != nil {
			return fmt.Errorf("installer: remove failed install before restore: %w", err)
		}
		if err := copyTree(b.backupDir, b.hostBundlePath); err != nil {
			return fmt.Errorf("installer: restore host bundle from backup: %w", err)
		}
		b.finalized = true
	}
	return os.RemoveAll(b.backupDir)
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// moveOrCopyTree tries a rename first (the common case: src and dst share
// a filesystem, e.g. both under the staging root's parent), falling back
// to a recursive copy across filesystem boundaries.
func moveOrCopyTree(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyTree(src, dst)
}

// copyTree recursively copies src onto dst, preserving file modes. Each
// regular file is written through a temp-file-then-rename so a crash
// mid-copy never leaves a half-written file at its final name.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			return os.MkdirAll(target, dirPermissions)
		}
		return copyFileAtomic(p, target, info.Mode())
	})
}

func copyFileAtomic(srcPath, destPath string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(destPath), dirPermissions); err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	suffix, err := randomHex(8)
	if err != nil {
		return err
	}
	tmpPath := destPath + ".tmp." + suffix

	dst, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() {
		if _, statErr := os.Stat(tmpPath); statErr == nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
