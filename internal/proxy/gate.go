// Package proxy relays images from the service's own bucket so browsers can
// load them from the API origin.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"go.uber.org/zap"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultContentType = "image/jpeg"
)

// Asset is an open response body from the object store. The caller must
// close Body.
type Asset struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Gate fetches URLs that live under a single owned prefix and refuses
// everything else
type Gate struct {
	prefix string
	client *http.Client
	logger *zap.Logger
}

// NewGate creates a Gate for ownedPrefix, e.g. "http://minio:9000/media/".
// Redirects are never followed.
func NewGate(ownedPrefix string, timeout time.Duration, logger *zap.Logger) *Gate {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if !strings.HasSuffix(ownedPrefix, "/") {
		ownedPrefix += "/"
	}
	return &Gate{
		prefix: ownedPrefix,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Allowed reports whether rawURL may be fetched
func (g *Gate) Allowed(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: malformed url", apperr.ErrValidation)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) url", apperr.ErrValidation)
	}
	if u.User != nil || hasTraversal(rawURL, u) {
		return fmt.Errorf("%w: url is not allowed", apperr.ErrValidation)
	}
	if !strings.HasPrefix(rawURL, g.prefix) || len(rawURL) == len(g.prefix) {
		return fmt.Errorf("%w: url is outside the image store", apperr.ErrValidation)
	}
	return nil
}

// hasTraversal reports ".." in the raw or decoded path. A "%" left after
// decoding means the path was encoded twice, which is rejected as well.
func hasTraversal(rawURL string, u *url.URL) bool {
	return strings.Contains(rawURL, "..") ||
		strings.Contains(u.Path, "..") ||
		strings.Contains(u.Path, "%")
}

// FetchIfOwned opens rawURL when it points inside the owned prefix
func (g *Gate) FetchIfOwned(ctx context.Context, rawURL string) (*Asset, error) {
	if err := g.Allowed(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch image: %w", apperr.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		g.logger.Debug("image fetch returned non-success status", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: image store returned %d", apperr.ErrUpstream, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Asset{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}
