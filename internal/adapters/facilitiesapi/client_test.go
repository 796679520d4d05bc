package facilitiesapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
	"github.com/JoseluisLarrazabal/lqq-discovery/internal/pkg/httpretry"
)

func quietClient(url string, opts ...Option) *Client {
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetryDelay(time.Millisecond),
	}, opts...)
	return New(url, opts...)
}

func TestClient_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/facilities" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("type"); got != "pharmacy" {
			t.Errorf("expected type=pharmacy, got %q", got)
		}
		if got := r.URL.Query().Get("search"); got != "san josé" {
			t.Errorf("expected search=san josé, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.FacilityList{Items: []domain.FacilityRecord{
			{ID: "p1", Name: "Farmacia San José", Category: "pharmacy",
				Coordinate: domain.Coordinate{Latitude: -16.5, Longitude: -68.15}},
		}})
	}))
	defer server.Close()

	records, err := quietClient(server.URL).Fetch(context.Background(),
		domain.FilterState{Category: "pharmacy", SearchText: "san josé"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].ID != "p1" {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[0].Coordinate.Latitude != -16.5 {
		t.Errorf("unexpected coordinate %+v", records[0].Coordinate)
	}
}

func TestClient_Fetch_OmitsEmptyParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("expected no query string, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	records, err := quietClient(server.URL + "/").Fetch(context.Background(), domain.FilterState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", records)
	}
}

func TestClient_Fetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"c1","name":"Clínica","category":"clinic"}]}`))
	}))
	defer server.Close()

	records, err := quietClient(server.URL, WithMaxRetries(2)).Fetch(context.Background(), domain.FilterState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClient_Fetch_NonRetriableStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := quietClient(server.URL, WithMaxRetries(3)).Fetch(context.Background(), domain.FilterState{})

	var apiErr *httpretry.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *httpretry.Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Retriable {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no retries, got %d attempts", calls.Load())
	}
}

func TestClient_Fetch_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	_, err := quietClient(server.URL).Fetch(context.Background(), domain.FilterState{})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	start := time.Now()
	_, err := quietClient(server.URL, WithTimeout(20*time.Millisecond), WithMaxRetries(0)).
		Fetch(context.Background(), domain.FilterState{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
}

func TestClient_FetchFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exports/lapaz.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"p1","name":"Farmacia","category":"pharmacy"},{"id":"c1","name":"Clínica","category":"clinic"}]}`))
	}))
	defer server.Close()

	// The base URL is irrelevant for feeds.
	records, err := quietClient("http://unused.invalid").FetchFeed(context.Background(), server.URL+"/exports/lapaz.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestClient_Fetch_ReturnsOnCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	_, err := quietClient(server.URL, WithTimeout(5*time.Second)).Fetch(ctx, domain.FilterState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation not honoured, took %v", elapsed)
	}
}
