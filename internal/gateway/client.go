// Package gateway is the client side of the remote entity service: one REST
// collection per entity kind, bearer-authenticated, JSON in and out.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"bizbook/core/internal/cache"
	"bizbook/core/internal/domain"
	"bizbook/core/internal/logging"
	"bizbook/core/internal/metrics"
)

var (
	ErrTransport       = errors.New("gateway unreachable")
	ErrUnexpectedShape = errors.New("gateway returned an unexpected payload")
)

// StatusError is a non-2xx answer from the remote service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type Options struct {
	BaseURL      string
	Timeout      time.Duration
	RatePerSec   float64
	Burst        int
	HTTPClient   *http.Client
	Session      SessionStore
	Logger       *logrus.Logger
	Metrics      *metrics.Metrics
	PageCache    cache.PageCache
	PageCacheTTL time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	session SessionStore
	limiter *rate.Limiter
	logger  *logrus.Logger
	metrics *metrics.Metrics
	pages   cache.PageCache
	pageTTL time.Duration
	now     func() time.Time
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	pages := opts.PageCache
	if pages == nil {
		pages = cache.NoopPageCache{}
	}
	pageTTL := opts.PageCacheTTL
	if pageTTL <= 0 {
		pageTTL = 20 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		session: opts.Session,
		limiter: limiter,
		logger:  logging.OrDiscard(opts.Logger),
		metrics: opts.Metrics,
		pages:   pages,
		pageTTL: pageTTL,
		now:     time.Now,
	}
}

type call struct {
	kind   domain.Kind
	op     string
	method string
	path   string
	params url.Values
	body   any
}

func (c *Client) do(ctx context.Context, cl call) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, cl.method, cl.path, err)
		}
	}

	endpoint := c.baseURL + cl.path
	if len(cl.params) > 0 {
		endpoint = endpoint + "?" + cl.params.Encode()
	}

	var reader io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", cl.op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	if token := c.bearer(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	startedAt := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveCall(string(cl.kind), cl.op, 0, time.Since(startedAt))
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, cl.method, cl.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.ObserveCall(string(cl.kind), cl.op, resp.StatusCode, time.Since(startedAt))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrTransport, cl.method, cl.path, err)
	}

	c.logger.WithFields(logrus.Fields{
		"kind":   cl.kind,
		"op":     cl.op,
		"status": resp.StatusCode,
	}).Debug("gateway call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Method:     cl.method,
			Path:       cl.path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
