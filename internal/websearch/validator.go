package websearch

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultProbeTimeout is the per-candidate validation deadline. A timeout
// means "not a usable PDF", never a retryable condition.
const DefaultProbeTimeout = 5 * time.Second

// Validator probes candidate URLs to confirm they are reachable and serve
// PDF content. Candidates that fail are silently dropped upstream.
type Validator struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewValidator creates a Validator. A nil client gets a default; a
// non-positive timeout falls back to DefaultProbeTimeout.
func NewValidator(client *http.Client, timeout time.Duration, logger *slog.Logger) *Validator {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{client: client, timeout: timeout, logger: logger}
}

// Validate reports whether url serves PDF content. It issues a HEAD
// request first and falls back to a ranged GET for servers that reject
// HEAD.
func (v *Validator) Validate(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if ok, decided := v.probe(ctx, http.MethodHead, url); decided {
		return ok
	}
	ok, _ := v.probe(ctx, http.MethodGet, url)
	return ok
}

// probe returns (result, decided). decided is false when the server
// rejected the method itself, signalling a GET fallback is worth trying.
func (v *Validator) probe(ctx context.Context, method, url string) (bool, bool) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false, true
	}
	if method == http.MethodGet {
		// Only headers are needed; avoid pulling the whole document.
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("candidate probe failed", "url", url, "method", method, "error", err)
		return false, true
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return false, method == http.MethodGet
	}
	if resp.StatusCode >= 400 {
		return false, true
	}

	contentType := resp.Header.Get("Content-Type")
	return strings.Contains(strings.ToLower(contentType), "application/pdf"), true
}
