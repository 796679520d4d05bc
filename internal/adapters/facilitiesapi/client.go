// Package facilitiesapi fetches facility records from the backend's
// GET /facilities endpoint and downloads import feeds.
package facilitiesapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/httpretry"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/telemetry"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 2
	defaultRetryDelay = 500 * time.Millisecond
)

// Client implements ports.FacilitySource over HTTP.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	timeout time.Duration
	policy  httpretry.Policy
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.policy.MaxRetries = n }
}

// WithRetryDelay sets the initial backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.policy.Delay = d }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: &fasthttp.Client{
			Name:                "lqq-discovery",
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		policy:  httpretry.Policy{MaxRetries: defaultMaxRetries, Delay: defaultRetryDelay},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch returns the records matching filter. Empty filter fields are omitted
// from the query string.
func (c *Client) Fetch(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error) {
	ctx, span := telemetry.Tracer("facilitiesapi").Start(ctx, "facilitiesapi.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.AttrCategory, filter.Category),
		attribute.String(telemetry.AttrSearchText, filter.SearchText),
	)

	var records []domain.FacilityRecord
	err := httpretry.Do(ctx, c.policy, c.log, "facilities.fetch", func(ctx context.Context, attempt int) error {
		span.AddEvent("attempt", trace.WithAttributes(attribute.Int(telemetry.AttrAttempt, attempt+1)))
		var err error
		records, err = c.fetchOnce(ctx, filter)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int(telemetry.AttrItemCount, len(records)))
	return records, nil
}

// FetchFeed downloads a complete facility feed from an absolute URL. The feed
// uses the same {"items": [...]} body as GET /facilities.
func (c *Client) FetchFeed(ctx context.Context, feedURL string) ([]domain.FacilityRecord, error) {
	ctx, span := telemetry.Tracer("facilitiesapi").Start(ctx, "facilitiesapi.FetchFeed")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrFeedURL, feedURL))

	var records []domain.FacilityRecord
	err := httpretry.Do(ctx, c.policy, c.log, "facilities.feed", func(ctx context.Context, attempt int) error {
		span.AddEvent("attempt", trace.WithAttributes(attribute.Int(telemetry.AttrAttempt, attempt+1)))
		var err error
		records, err = c.getList(ctx, func(req *fasthttp.Request) {
			req.SetRequestURI(feedURL)
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed download failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int(telemetry.AttrItemCount, len(records)))
	return records, nil
}

func (c *Client) fetchOnce(ctx context.Context, filter domain.FilterState) ([]domain.FacilityRecord, error) {
	return c.getList(ctx, func(req *fasthttp.Request) {
		req.SetRequestURI(c.baseURL + "/facilities")
		args := req.URI().QueryArgs()
		if filter.Category != "" {
			args.Add("type", filter.Category)
		}
		if filter.SearchText != "" {
			args.Add("search", filter.SearchText)
		}
	})
}

func (c *Client) getList(ctx context.Context, prepare func(*fasthttp.Request)) ([]domain.FacilityRecord, error) {
	resp, err := httpretry.Get(ctx, c.http, c.timeout, func(req *fasthttp.Request) {
		prepare(req)
		req.Header.Set(fasthttp.HeaderAccept, "application/json")
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != fasthttp.StatusOK {
		return nil, &httpretry.Error{
			StatusCode: resp.StatusCode,
			Retriable:  httpretry.RetriableStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status code %d", resp.StatusCode),
		}
	}

	var list domain.FacilityList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, &httpretry.Error{Err: fmt.Errorf("decode facilities: %w", err)}
	}
	if list.Items == nil {
		list.Items = []domain.FacilityRecord{}
	}
	return list.Items, nil
}
