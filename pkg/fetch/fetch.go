// Package fetch downloads files and small documents over HTTP(S) with
// proxy support, optional TLS verification bypass, progress reporting and
// bounded retries. Partial output never survives a failed download.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/rust-install/rim/pkg/httpclient"
	"github.com/rust-install/rim/pkg/progress"
)

const maxRetries = 3

// DownloadOpt configures a single download: the display name used on the
// progress line plus transport settings.
type DownloadOpt struct {
	name     string
	handler  progress.Handler
	client   *http.Client
	proxy    httpclient.Config
	insecure bool
}

// New creates a DownloadOpt reporting to handler. A nil handler discards
// progress.
func New(name string, handler progress.Handler) *DownloadOpt {
	if handler == nil {
		handler = progress.Discard{}
	}
	return &DownloadOpt{name: name, handler: handler}
}

// WithProxy applies proxy URLs and a no-proxy list to the transport.
func (d *DownloadOpt) WithProxy(httpProxy, httpsProxy, noProxy string) *DownloadOpt {
	d.proxy.HTTPProxy = httpProxy
	d.proxy.HTTPSProxy = httpsProxy
	d.proxy.NoProxy = noProxy
	return d
}

// WithClient overrides the HTTP client, ignoring proxy and insecure
// settings. Mostly used by tests.
func (d *DownloadOpt) WithClient(client *http.Client) *DownloadOpt {
	d.client = client
	return d
}

// Insecure disables TLS certificate verification.
func (d *DownloadOpt) Insecure(insecure bool) *DownloadOpt {
	d.insecure = insecure
	return d
}

func (d *DownloadOpt) httpClient() *http.Client {
	if d.client != nil {
		return d.client
	}
	cfg := d.proxy
	cfg.Insecure = d.insecure
	return httpclient.New(cfg)
}

// Download fetches url into destPath. The file is written to a temporary
// sibling and renamed into place only after the body was read completely,
// so a failed attempt leaves nothing behind.
func (d *DownloadOpt) Download(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.Wrap(err, "failed to create destination directory")
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	defer tmpFile.Close()

	client := d.httpClient()
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := sleepBeforeRetry(ctx, attempt); err != nil {
			return err
		}

		resp, err := d.get(ctx, client, url)
		if err != nil {
			lastErr = err
			continue
		}
		retryable, err := func() (bool, error) {
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				err := errors.Errorf("unexpected status code %d for %q", resp.StatusCode, url)
				return resp.StatusCode >= 500, err
			}

			if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
				return false, errors.Wrap(err, "failed to rewind temporary file")
			}
			if err := tmpFile.Truncate(0); err != nil {
				return false, errors.Wrap(err, "failed to truncate temporary file")
			}

			written, err := d.copyBody(tmpFile, resp)
			if err != nil {
				return true, err
			}
			if written == 0 {
				return true, errors.Errorf("no content downloaded from %q", url)
			}
			return false, nil
		}()
		if err != nil {
			lastErr = err
			if retryable {
				continue
			}
			return err
		}

		if err := tmpFile.Close(); err != nil {
			return errors.Wrap(err, "failed to close temporary file")
		}
		if err := os.Rename(tmpPath, destPath); err != nil {
			return errors.Wrap(err, "failed to move downloaded file")
		}
		return nil
	}

	return errors.Wrapf(lastErr, "download failed after %d attempts", maxRetries)
}

// Fetch reads url fully into memory, with the same transport and retry
// behavior as Download. Meant for small documents such as manifests.
func (d *DownloadOpt) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := d.httpClient()
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := sleepBeforeRetry(ctx, attempt); err != nil {
			return nil, err
		}

		resp, err := d.get(ctx, client, url)
		if err != nil {
			lastErr = err
			continue
		}
		body, retryable, err := func() ([]byte, bool, error) {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err := errors.Errorf("unexpected status code %d for %q", resp.StatusCode, url)
				return nil, resp.StatusCode >= 500, err
			}
			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, true, errors.Wrapf(err, "failed to read response body of %q", url)
			}
			return b, false, nil
		}()
		if err != nil {
			lastErr = err
			if retryable {
				continue
			}
			return nil, err
		}
		return body, nil
	}
	return nil, errors.Wrapf(lastErr, "fetch failed after %d attempts", maxRetries)
}

func (d *DownloadOpt) get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	return client.Do(req)
}

// copyBody streams the response into dst while reporting byte progress.
func (d *DownloadOpt) copyBody(dst io.Writer, resp *http.Response) (int64, error) {
	label := fmt.Sprintf("downloading '%s'", d.name)
	if resp.ContentLength > 0 {
		d.handler.Start(label, progress.Bytes(resp.ContentLength))
	} else {
		d.handler.Start(label, progress.Spinner())
	}
	written, err := io.Copy(io.MultiWriter(dst, handlerWriter{d.handler}), resp.Body)
	if err != nil {
		return written, errors.Wrapf(err, "failed to download '%s'", d.name)
	}
	d.handler.Finish("")
	return written, nil
}

func sleepBeforeRetry(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(attempt) * time.Second):
		return nil
	}
}

// handlerWriter forwards byte counts to a progress handler.
type handlerWriter struct {
	h progress.Handler
}

func (w handlerWriter) Write(p []byte) (int, error) {
	w.h.Update(int64(len(p)))
	return len(p), nil
}
