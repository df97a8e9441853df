// Package transport talks to the Pyro server: it downloads the scanner
// package and uploads finished scan reports.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrUnexpectedStatus is returned when the server answers with a non-success
// HTTP status.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// Transport is the capability through which the scan lifecycle reaches the
// network. Tests substitute a deterministic fake.
type Transport interface {
	// Download fetches url and returns the response body. bearer is optional;
	// when set it is sent as a bearer credential.
	Download(ctx context.Context, url, bearer string) ([]byte, error)

	// Upload POSTs a JSON body to url with the given bearer credential.
	Upload(ctx context.Context, url, bearer string, body []byte) error
}

// maxDownloadSize caps package downloads to protect against a misbehaving
// server.
const maxDownloadSize = 1 << 30 // 1GB

// HTTPTransport implements Transport over HTTPS.
type HTTPTransport struct {
	client *http.Client
	logger *zap.SugaredLogger
}

// NewHTTPTransport creates a transport with the given request timeout.
func NewHTTPTransport(timeout time.Duration, logger *zap.SugaredLogger) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		logger: logger,
	}
}

// Download fetches url, optionally authenticating with a bearer credential.
func (t *HTTPTransport) Download(ctx context.Context, url, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: %w: HTTP %d", url, ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("read download body: %w", err)
	}

	t.logger.Infow("download completed",
		"url", url,
		"bytes", len(body),
		"elapsed", time.Since(start),
	)
	return body, nil
}

// Upload POSTs a JSON body with a bearer credential.
func (t *HTTPTransport) Upload(ctx context.Context, url, bearer string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload %s: %w: HTTP %d", url, ErrUnexpectedStatus, resp.StatusCode)
	}

	t.logger.Infow("upload completed", "url", url, "bytes", len(body))
	return nil
}
