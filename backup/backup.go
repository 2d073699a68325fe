// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package backup archives node configuration and keystores, and prunes
// old archives according to a retention count.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/naturalsort"
)

var logger = loggo.GetLogger("noderig.backup")

const archivePrefix = "noderig-backup-"

// Params configures a backup run.
type Params struct {
	// SourceDirs are the directories to include in the archive.
	// Missing directories are skipped with a warning rather than
	// failing the backup, since which directories exist depends on
	// which features are enabled.
	SourceDirs []string

	// TargetDir is where archives are written.
	TargetDir string

	// Retention is how many archives to keep, oldest pruned first.
	// Zero means keep everything.
	Retention int
}

// Backups creates and prunes backup archives.
type Backups struct {
	clock clock.Clock
}

// NewBackups returns a Backups using the given clock for archive
// timestamps.
func NewBackups(clk clock.Clock) *Backups {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Backups{clock: clk}
}

// Create writes a new gzipped tar archive of the source directories and
// returns its path. Archive names embed a UTC timestamp so they sort
// chronologically.
func (b *Backups) Create(params Params) (string, error) {
	if err := os.MkdirAll(params.TargetDir, 0700); err != nil {
		return "", errors.Trace(err)
	}
	stamp := b.clock.Now().UTC().Format("20060102-150405")
	archivePath := filepath.Join(params.TargetDir, fmt.Sprintf("%s%s.tar.gz", archivePrefix, stamp))

	f, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, dir := range params.SourceDirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			logger.Warningf("skipping missing directory %q", dir)
			continue
		}
		if err := addTree(tw, dir); err != nil {
			return "", errors.Annotatef(err, "archiving %q", dir)
		}
	}
	if err := tw.Close(); err != nil {
		return "", errors.Trace(err)
	}
	if err := gz.Close(); err != nil {
		return "", errors.Trace(err)
	}
	if err := f.Close(); err != nil {
		return "", errors.Trace(err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return "", errors.Trace(err)
	}
	logger.Infof("wrote backup %q (%s)", archivePath, humanize.Bytes(uint64(info.Size())))
	return archivePath, nil
}

// Prune removes the oldest archives in targetDir until at most retention
// remain, and returns the paths it removed.
func (b *Backups) Prune(targetDir string, retention int) ([]string, error) {
	if retention <= 0 {
		return nil, nil
	}
	archives, err := b.List(targetDir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(archives) <= retention {
		return nil, nil
	}
	var removed []string
	for _, path := range archives[:len(archives)-retention] {
		if err := os.Remove(path); err != nil {
			return removed, errors.Trace(err)
		}
		logger.Infof("pruned old backup %q", path)
		removed = append(removed, path)
	}
	return removed, nil
}

// List returns the backup archives in targetDir, oldest first. The
// timestamped names make a natural sort chronological.
func (b *Backups) List(targetDir string) ([]string, error) {
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}
	var archives []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		archives = append(archives, filepath.Join(targetDir, name))
	}
	naturalsort.Sort(archives)
	return archives, nil
}

func addTree(tw *tar.Writer, dir string) error {
	base := filepath.Dir(dir)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Trace(err)
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return errors.Trace(err)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return errors.Trace(err)
		}
		hdr.Name = rel
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return errors.Trace(err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return errors.Trace(err)
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return errors.Trace(err)
	})
}
