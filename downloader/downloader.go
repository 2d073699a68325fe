// Copyright 2026 Noderig Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package downloader fetches client release artifacts over HTTP.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("noderig.downloader")

// Request holds a single download request.
type Request struct {
	// URL of the artifact to download.
	URL string

	// TargetPath is the file the artifact is written to.
	TargetPath string

	// SHA256 is the expected hex digest of the artifact; empty means the
	// download is not verified.
	SHA256 string
}

// Downloader downloads files with bounded retries. Transient network
// failures are retried; a checksum mismatch is fatal immediately, since
// retrying cannot fix a wrong artifact.
type Downloader struct {
	client *http.Client
	clock  clock.Clock

	attempts int
	delay    time.Duration
}

// New returns a Downloader using the given HTTP client and clock; a nil
// client falls back to http.DefaultClient.
func New(client *http.Client, clk clock.Clock) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Downloader{
		client:   client,
		clock:    clk,
		attempts: 3,
		delay:    5 * time.Second,
	}
}

type errChecksumMismatch struct {
	error
}

// Download fetches req.URL into req.TargetPath, verifying the digest when
// one is given. The file appears atomically: it is downloaded to a
// temporary name and renamed only after verification.
func (d *Downloader) Download(ctx context.Context, req Request) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return d.downloadOne(ctx, req)
		},
		IsFatalError: func(err error) bool {
			if _, ok := errors.Cause(err).(*errChecksumMismatch); ok {
				return true
			}
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("download of %q failed (attempt %d): %v", req.URL, attempt, err)
		},
		Attempts: d.attempts,
		Delay:    d.delay,
		Clock:    d.clock,
	})
	return errors.Annotatef(err, "downloading %q", req.URL)
}

func (d *Downloader) downloadOne(ctx context.Context, req Request) (err error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", req.URL, nil)
	if err != nil {
		return errors.Trace(err)
	}
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return errors.Trace(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("bad http response: %v", resp.Status)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(req.TargetPath), "noderig-download-")
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		tmpFile.Close()
		if err != nil {
			if removeErr := os.Remove(tmpFile.Name()); removeErr != nil {
				logger.Warningf("cannot remove temporary file: %v", removeErr)
			}
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmpFile, hasher), resp.Body)
	if err != nil {
		return errors.Trace(err)
	}
	if req.SHA256 != "" {
		if digest := hex.EncodeToString(hasher.Sum(nil)); digest != req.SHA256 {
			return &errChecksumMismatch{
				errors.Errorf("checksum mismatch: expected %s, got %s", req.SHA256, digest),
			}
		}
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Trace(err)
	}
	if err := os.Rename(tmpFile.Name(), req.TargetPath); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("downloaded %q (%s)", req.URL, humanize.Bytes(uint64(size)))
	return nil
}
