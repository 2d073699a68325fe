// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package downloader

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
)

// ExtractBinary extracts the file at innerPath from archivePath into
// destPath, made executable. Gzipped tarballs and zip files are handled
// by suffix; anything else is treated as a raw binary and copied as is,
// in which case innerPath is ignored.
func ExtractBinary(archivePath, innerPath, destPath string) error {
	var err error
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		err = extractFromTarGz(archivePath, innerPath, destPath)
	case strings.HasSuffix(archivePath, ".zip"):
		err = extractFromZip(archivePath, innerPath, destPath)
	default:
		err = copyFile(archivePath, destPath)
	}
	if err != nil {
		return errors.Annotatef(err, "extracting %q from %q", innerPath, archivePath)
	}
	return nil
}

func extractFromTarGz(archivePath, innerPath, destPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Trace(err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Trace(err)
		}
		if hdr.Typeflag != tar.TypeReg || hdr.Name != innerPath {
			continue
		}
		return writeBinary(destPath, tr)
	}
	return errors.NotFoundf("entry %q in archive", innerPath)
}

func extractFromZip(archivePath, innerPath, destPath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Trace(err)
	}
	defer r.Close()
	for _, zf := range r.File {
		if zf.Name != innerPath {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return errors.Trace(err)
		}
		defer rc.Close()
		return writeBinary(destPath, rc)
	}
	return errors.NotFoundf("entry %q in archive", innerPath)
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errors.Trace(err)
	}
	defer src.Close()
	return writeBinary(destPath, src)
}

func writeBinary(destPath string, r io.Reader) error {
	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return errors.Trace(err)
	}
	defer dest.Close()
	if _, err := io.Copy(dest, r); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(dest.Close())
}
