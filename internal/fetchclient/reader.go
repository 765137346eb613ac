// Package fetchclient implements the HTTP backend for `gsd fetch`: a
// gzip-aware, conditional-GET, locally-caching reader for .gsd files
// published by a `gsd serve` instance (or any plain HTTP file server).
package fetchclient

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gsd-format/gsd"
	"github.com/gsd-format/gsd/internal/gsdenv"
)

// ErrNotFound is returned when the remote responds 404.
type ErrNotFound struct {
	URL *url.URL
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%v: HTTP status 404", e.URL)
}

type gzipReader struct {
	body io.ReadCloser
	zr   *gzip.Reader
}

func (r *gzipReader) Read(p []byte) (int, error) { return r.zr.Read(p) }

func (r *gzipReader) Close() error {
	if err := r.zr.Close(); err != nil {
		return err
	}
	return r.body.Close()
}

type closeFuncReadCloser struct {
	reader    io.Reader
	closeFunc func() error
}

func (c *closeFuncReadCloser) Read(p []byte) (int, error) { return c.reader.Read(p) }
func (c *closeFuncReadCloser) Close() error                { return c.closeFunc() }

var httpClient = &http.Client{Transport: &http.Transport{
	MaxIdleConnsPerHost: 10,
	DisableCompression:  true,
}}

func cacheFn(cache bool, base, name string) string {
	if !cache {
		return ""
	}
	dir := gsdenv.CacheDir()
	if dir == "" {
		return ""
	}
	path := filepath.Join(dir, strings.ReplaceAll(base, "/", "_"), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("cannot cache: %v", err)
		return ""
	}
	return path
}

// Open returns a reader for name relative to base. If base is a local
// directory, it is opened directly; if it is an http(s) URL, Open issues
// a conditional GET, transparently decompresses a gzip response, and (if
// cache is true) tees the body into a local cache file keyed by base and
// name, reusing it on a subsequent 304 response. The returned reader's
// first bytes are checked against the GSD magic number before Open
// returns, rather than handing the caller an unvalidated stream.
func Open(ctx context.Context, base, name string, cache bool) (io.ReadCloser, error) {
	rdc, err := open(ctx, base, name, cache)
	if err != nil {
		return nil, err
	}
	return verifyMagic(name, rdc)
}

// verifyMagic peeks the leading bytes of rdc and confirms they are the
// GSD magic number before handing the reader on to the caller. A plain
// file server has no idea what it's serving, so a caller asking gsd
// fetch for name has no use for a reader that silently turned out to
// hold something else (an HTML error page from a misconfigured -base, a
// truncated upload, a stale proxy response); fail here instead of
// leaving that discovery to whatever tries to gsd.Open the result.
func verifyMagic(name string, rdc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rdc)
	head, err := br.Peek(8)
	if err != nil && err != io.EOF {
		rdc.Close()
		return nil, err
	}
	if !gsd.HasMagic(head) {
		rdc.Close()
		return nil, fmt.Errorf("%s: %w", name, gsd.ErrNotAGSDFile)
	}
	return &closeFuncReadCloser{reader: br, closeFunc: rdc.Close}, nil
}

func open(ctx context.Context, base, name string, cache bool) (io.ReadCloser, error) {
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return os.Open(filepath.Join(base, name))
	}

	fn := cacheFn(cache, base, name)
	var ifModifiedSince time.Time
	if fn != "" {
		if st, err := os.Stat(fn); err == nil {
			ifModifiedSince = st.ModTime()
		}
	}

	req, err := http.NewRequest("GET", strings.TrimSuffix(base, "/")+"/"+name, nil)
	if err != nil {
		return nil, err
	}
	if !ifModifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", ifModifiedSince.Format(http.TimeFormat))
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if fn != "" && resp.StatusCode == http.StatusNotModified {
		return os.Open(fn)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &ErrNotFound{URL: req.URL}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP status %v", req.URL, resp.Status)
	}

	rdc := resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		rdc = &gzipReader{body: resp.Body, zr: zr}
	}

	var cacheFile *os.File
	if fn != "" {
		cacheFile, err = os.Create(fn)
		if err != nil {
			log.Printf("cannot cache: %v", err)
		}
	}
	wr := ioutil.Discard
	if cacheFile != nil {
		wr = cacheFile
	}

	mtime := time.Now()
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := time.Parse(http.TimeFormat, lm); err == nil {
			mtime = t
		} else {
			log.Printf("invalid Last-Modified header %q", lm)
		}
	}

	return &closeFuncReadCloser{
		reader: io.TeeReader(rdc, wr),
		closeFunc: func() error {
			if err := rdc.Close(); err != nil {
				return err
			}
			if cacheFile != nil {
				if err := cacheFile.Close(); err != nil {
					return err
				}
				return os.Chtimes(fn, mtime, mtime)
			}
			return nil
		},
	}, nil
}
