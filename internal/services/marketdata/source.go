package marketdata

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/pkg/retrier"
)

const defaultTimeout = 10 * time.Second

// Source produces one batch of market entries per call.
type Source interface {
	Fetch(ctx context.Context) ([]domain.MarketEntry, error)
}

// NewSource picks an HTTP source for http(s) locations and a file source otherwise.
func NewSource(location string, timeout time.Duration, l *zap.Logger) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSource(location, timeout, l)
	}
	return NewFileSource(location, l)
}

// FileSource reads a feed file on every fetch, so an external exporter may rewrite it.
type FileSource struct {
	path string
	l    *zap.Logger
}

// NewFileSource creates a file-backed source.
func NewFileSource(path string, l *zap.Logger) *FileSource {
	if l == nil {
		l = zap.NewNop()
	}
	return &FileSource{path: path, l: l}
}

// Fetch reads and parses the file.
func (s *FileSource) Fetch(_ context.Context) ([]domain.MarketEntry, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read feed %s", s.path)
	}
	return ParseFeed(raw, s.l)
}

// HTTPSource polls a feed endpoint.
type HTTPSource struct {
	url     string
	client  *resty.Client
	retrier *retrier.Retrier
	l       *zap.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithRetrier replaces the default retry policy.
func WithRetrier(r *retrier.Retrier) HTTPOption {
	return func(s *HTTPSource) { s.retrier = r }
}

// WithHeader adds a header to every request, e.g. an API token.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPSource) { s.client.SetHeader(key, value) }
}

// NewHTTPSource creates a source polling url.
func NewHTTPSource(url string, timeout time.Duration, l *zap.Logger, opts ...HTTPOption) *HTTPSource {
	if l == nil {
		l = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	s := &HTTPSource{
		url:     url,
		client:  client,
		retrier: retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(500*time.Millisecond)),
		l:       l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads and parses one batch. Transport and 5xx errors are retried; decode errors are not.
func (s *HTTPSource) Fetch(ctx context.Context) ([]domain.MarketEntry, error) {
	body, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) ([]byte, error) {
		resp, err := s.client.R().SetContext(ctx).Get(s.url)
		if err != nil {
			return nil, errors.Wrap(err, "request feed")
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, errors.Errorf("feed returned %s", resp.Status())
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, retrier.Permanent(errors.Errorf("feed returned %s", resp.Status()))
		}
		return resp.Body(), nil
	})
	if err != nil {
		s.l.Warn("feed fetch failed", zap.String("url", s.url), zap.Error(err))
		return nil, err
	}
	return ParseFeed(body, s.l)
}
