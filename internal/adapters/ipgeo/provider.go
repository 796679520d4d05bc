// Package ipgeo approximates a user's position from the client IP address.
package ipgeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/httpretry"
)

// ipPlaceholder in the lookup URL is replaced by the client address.
const ipPlaceholder = "{ip}"

// lookupResponse accepts both the ip-api ("lat"/"lon") and the
// Mullvad-style ("latitude"/"longitude") field names.
type lookupResponse struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Provider implements ports.LocationProvider for one client IP. Permission is
// implicitly granted.
type Provider struct {
	http    *fasthttp.Client
	url     string
	timeout time.Duration
	policy  httpretry.Policy
	log     *slog.Logger
}

// New creates a Provider resolving ip through urlTemplate. Loopback and private
// addresses are sent as an empty token so the service geolocates the caller.
func New(urlTemplate, ip string, timeout time.Duration, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Provider{
		http:    &fasthttp.Client{Name: "lqq-discovery"},
		url:     strings.ReplaceAll(urlTemplate, ipPlaceholder, publicIP(ip)),
		timeout: timeout,
		policy:  httpretry.Policy{MaxRetries: 2, Delay: 250 * time.Millisecond},
		log:     log,
	}
}

// RequestPermission always grants: no device prompt is involved.
func (p *Provider) RequestPermission(context.Context) (bool, error) {
	return true, nil
}

// CurrentPosition looks the address up. Position hints are ignored.
func (p *Provider) CurrentPosition(ctx context.Context, _ domain.PositionOptions) (domain.Coordinate, error) {
	var coord domain.Coordinate
	err := httpretry.Do(ctx, p.policy, p.log, "ipgeo.lookup", func(ctx context.Context, _ int) error {
		var err error
		coord, err = p.lookup(ctx)
		return err
	})
	return coord, err
}

func (p *Provider) lookup(ctx context.Context) (domain.Coordinate, error) {
	resp, err := httpretry.Get(ctx, p.http, p.timeout, func(req *fasthttp.Request) {
		req.SetRequestURI(p.url)
	})
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("ip lookup: %w", err)
	}

	if resp.StatusCode != fasthttp.StatusOK {
		return domain.Coordinate{}, &httpretry.Error{
			StatusCode: resp.StatusCode,
			Retriable:  httpretry.RetriableStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status code %d", resp.StatusCode),
		}
	}

	var body lookupResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return domain.Coordinate{}, &httpretry.Error{Err: fmt.Errorf("decode ip lookup: %w", err)}
	}
	if body.Status == "fail" {
		return domain.Coordinate{}, &httpretry.Error{Err: fmt.Errorf("ip lookup failed: %s", body.Message)}
	}

	lat, lon := body.Lat, body.Lon
	if lat == nil || lon == nil {
		lat, lon = body.Latitude, body.Longitude
	}
	if lat == nil || lon == nil {
		return domain.Coordinate{}, &httpretry.Error{Err: errors.New("ip lookup response has no coordinates")}
	}
	return domain.Coordinate{Latitude: *lat, Longitude: *lon}, nil
}

func publicIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return ""
	}
	return parsed.String()
}
