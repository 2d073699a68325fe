// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package downloader_test

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	stdtesting "testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/noderig/noderig/downloader"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type DownloaderSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&DownloaderSuite{})

func (s *DownloaderSuite) newServer(c *gc.C, status int, body []byte) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(status)
		w.Write(body)
	}))
	s.AddCleanup(func(c *gc.C) { server.Close() })
	return server
}

func (s *DownloaderSuite) TestDownload(c *gc.C) {
	content := []byte("client release payload")
	server := s.newServer(c, http.StatusOK, content)

	target := filepath.Join(c.MkDir(), "artifact.tar.gz")
	dl := downloader.New(nil, testclock.NewClock(time.Now()))
	err := dl.Download(context.Background(), downloader.Request{
		URL:        server.URL,
		TargetPath: target,
	})
	c.Assert(err, jc.ErrorIsNil)

	data, err := os.ReadFile(target)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(data, jc.DeepEquals, content)
}

func (s *DownloaderSuite) TestDownloadVerifiesChecksum(c *gc.C) {
	content := []byte("client release payload")
	server := s.newServer(c, http.StatusOK, content)

	digest := sha256.Sum256(content)
	target := filepath.Join(c.MkDir(), "artifact.tar.gz")
	dl := downloader.New(nil, testclock.NewClock(time.Now()))
	err := dl.Download(context.Background(), downloader.Request{
		URL:        server.URL,
		TargetPath: target,
		SHA256:     hex.EncodeToString(digest[:]),
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *DownloaderSuite) TestDownloadChecksumMismatchIsFatal(c *gc.C) {
	server := s.newServer(c, http.StatusOK, []byte("unexpected payload"))

	target := filepath.Join(c.MkDir(), "artifact.tar.gz")
	dl := downloader.New(nil, testclock.NewClock(time.Now()))
	err := dl.Download(context.Background(), downloader.Request{
		URL:        server.URL,
		TargetPath: target,
		SHA256:     "deadbeef",
	})
	c.Assert(err, gc.ErrorMatches, `downloading ".*": checksum mismatch: expected deadbeef, got .*`)
	// The partial download must not be left behind.
	_, err = os.Stat(target)
	c.Check(err, jc.Satisfies, os.IsNotExist)
}

func (s *DownloaderSuite) TestDownloadBadStatus(c *gc.C) {
	server := s.newServer(c, http.StatusNotFound, nil)

	target := filepath.Join(c.MkDir(), "artifact.tar.gz")
	dl := downloader.New(nil, testclock.NewDilatedWallClock(time.Millisecond))
	err := dl.Download(context.Background(), downloader.Request{
		URL:        server.URL,
		TargetPath: target,
	})
	c.Assert(err, gc.ErrorMatches, `downloading ".*": attempt count exceeded: bad http response: 404 Not Found`)
}

type ExtractSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&ExtractSuite{})

func (s *ExtractSuite) TestExtractTarGz(c *gc.C) {
	dir := c.MkDir()
	archive := filepath.Join(dir, "release.tar.gz")
	makeTarGz(c, archive, map[string][]byte{
		"release/README.md": []byte("docs"),
		"release/bin/geth":  []byte("geth binary"),
	})

	dest := filepath.Join(dir, "geth")
	err := downloader.ExtractBinary(archive, "release/bin/geth", dest)
	c.Assert(err, jc.ErrorIsNil)

	data, err := os.ReadFile(dest)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "geth binary")
	info, err := os.Stat(dest)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Mode()&0111, gc.Not(gc.Equals), os.FileMode(0))
}

func (s *ExtractSuite) TestExtractTarGzMissingEntry(c *gc.C) {
	dir := c.MkDir()
	archive := filepath.Join(dir, "release.tar.gz")
	makeTarGz(c, archive, map[string][]byte{
		"release/bin/geth": []byte("geth binary"),
	})

	err := downloader.ExtractBinary(archive, "no/such/entry", filepath.Join(dir, "out"))
	c.Assert(err, gc.ErrorMatches, `extracting "no/such/entry" from ".*": entry "no/such/entry" in archive not found`)
}

func (s *ExtractSuite) TestExtractZip(c *gc.C) {
	dir := c.MkDir()
	archive := filepath.Join(dir, "release.zip")
	makeZip(c, archive, map[string][]byte{
		"teku/bin/teku": []byte("teku launcher"),
	})

	dest := filepath.Join(dir, "teku")
	err := downloader.ExtractBinary(archive, "teku/bin/teku", dest)
	c.Assert(err, jc.ErrorIsNil)

	data, err := os.ReadFile(dest)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "teku launcher")
}

func (s *ExtractSuite) TestExtractRawBinary(c *gc.C) {
	dir := c.MkDir()
	src := filepath.Join(dir, "mev-boost")
	err := os.WriteFile(src, []byte("mev-boost binary"), 0644)
	c.Assert(err, jc.ErrorIsNil)

	dest := filepath.Join(dir, "out")
	err = downloader.ExtractBinary(src, "", dest)
	c.Assert(err, jc.ErrorIsNil)

	data, err := os.ReadFile(dest)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "mev-boost binary")
	info, err := os.Stat(dest)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(info.Mode()&0111, gc.Not(gc.Equals), os.FileMode(0))
}

func makeTarGz(c *gc.C, path string, entries map[string][]byte) {
	f, err := os.Create(path)
	c.Assert(err, jc.ErrorIsNil)
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, data := range entries {
		err := tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(data)),
		})
		c.Assert(err, jc.ErrorIsNil)
		_, err = tw.Write(data)
		c.Assert(err, jc.ErrorIsNil)
	}
	c.Assert(tw.Close(), jc.ErrorIsNil)
	c.Assert(gz.Close(), jc.ErrorIsNil)
}

func makeZip(c *gc.C, path string, entries map[string][]byte) {
	f, err := os.Create(path)
	c.Assert(err, jc.ErrorIsNil)
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		c.Assert(err, jc.ErrorIsNil)
		_, err = w.Write(data)
		c.Assert(err, jc.ErrorIsNil)
	}
	c.Assert(zw.Close(), jc.ErrorIsNil)
}
