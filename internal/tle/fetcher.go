package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Visually bright objects, the natural population for naked-eye pass search.
const defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=visual&FORMAT=tle"

// maxBodyBytes caps a single response.
const maxBodyBytes = 50 << 20

const userAgent = "skypass/1 (+https://github.com/star/skypass)"

// ErrNotModified is returned by Fetch when the primary source answered a
// conditional request with 304.
var ErrNotModified = errors.New("TLE source not modified")

// Fetcher retrieves raw TLE data from a primary source plus optional extras.
// It remembers the primary source's ETag and Last-Modified validators and
// sends them on the next request.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	etag         string
	lastModified string
}

// NewFetcher creates a Fetcher for the given source URL. Extra URLs are
// fetched after the primary and appended; their failures are logged and
// otherwise ignored.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// ResetValidators drops the remembered validators so the next Fetch is
// unconditional.
func (f *Fetcher) ResetValidators() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.etag, f.lastModified = "", ""
}

// Fetch retrieves the primary source and any extra sources, concatenated.
// Extras are skipped when the primary is unchanged.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL, true)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(body)
	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u, false)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.Write(extra)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) get(ctx context.Context, url string, conditional bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/plain")
	if conditional {
		f.mu.Lock()
		if f.etag != "" {
			req.Header.Set("If-None-Match", f.etag)
		}
		if f.lastModified != "" {
			req.Header.Set("If-Modified-Since", f.lastModified)
		}
		f.mu.Unlock()
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if conditional && resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	if conditional {
		f.mu.Lock()
		f.etag = resp.Header.Get("ETag")
		f.lastModified = resp.Header.Get("Last-Modified")
		f.mu.Unlock()
	}
	return body, nil
}
