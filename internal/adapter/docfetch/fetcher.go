// Package docfetch retrieves the student's project PDF for grounding. Every
// failure degrades to "no document": tip generation proceeds without it.
package docfetch

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/opcdev/opc-evaluator/internal/adapter/observability"
	"github.com/opcdev/opc-evaluator/internal/domain"
)

// driveFileRe matches Google Drive share links; capture group 1 is the file id.
var driveFileRe = regexp.MustCompile(`drive\.google\.com/file/d/([A-Za-z0-9_-]+)`)

// NormalizeURL rewrites Google Drive share links into direct download form.
// Other URLs pass through unchanged.
func NormalizeURL(url string) string {
	if m := driveFileRe.FindStringSubmatch(url); m != nil {
		return fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", m[1])
	}
	return url
}

// Fetcher downloads PDFs over HTTP with a size cap and a signature check.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewFetcher creates a Fetcher. maxMB caps the downloaded size.
func NewFetcher(timeout time.Duration, maxMB int64) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxMB <= 0 {
		maxMB = 25
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxMB << 20,
	}
}

// Fetch downloads the document at url. It returns nil on any failure: bad
// URL, HTTP error, oversize body or content that is not a real PDF. Callers
// treat nil as "generate without grounding".
func (f *Fetcher) Fetch(ctx domain.Context, url string) []byte {
	if url == "" {
		return nil
	}
	normalized := NormalizeURL(url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		f.degrade(url, "bad_url", err)
		return nil
	}
	// Drive serves an interstitial page to clients it does not recognize.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.degrade(url, "request_failed", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		f.degrade(url, "bad_status", fmt.Errorf("status %d", resp.StatusCode))
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		f.degrade(url, "read_failed", err)
		return nil
	}
	if int64(len(data)) > f.maxBytes {
		f.degrade(url, "too_large", fmt.Errorf("body exceeds %d bytes", f.maxBytes))
		return nil
	}

	// Content sniffing, not Content-Type: Drive often answers with
	// application/octet-stream, and HTML error pages come back as 200.
	if !mimetype.Detect(data).Is("application/pdf") {
		f.degrade(url, "not_pdf", fmt.Errorf("detected %s", mimetype.Detect(data).String()))
		return nil
	}

	observability.DocumentFetchTotal.WithLabelValues("success").Inc()
	return data
}

func (f *Fetcher) degrade(url, outcome string, err error) {
	observability.DocumentFetchTotal.WithLabelValues(outcome).Inc()
	slog.Warn("document fetch degraded",
		slog.String("url", url),
		slog.String("outcome", outcome),
		slog.Any("error", err))
}
