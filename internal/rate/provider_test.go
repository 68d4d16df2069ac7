package rate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

type stubSource struct {
	name  string
	rate  decimal.Decimal
	err   error
	calls int32
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context) (decimal.Decimal, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return decimal.Decimal{}, s.err
	}
	return s.rate, nil
}

func testOptions() ProviderOptions {
	return ProviderOptions{
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		Budget:         2 * time.Second,
		AttemptTimeout: time.Second,
		TTL:            2 * time.Minute,
	}
}

func TestResolveUsesFreshCacheWithoutNetworkIO(t *testing.T) {
	cache := NewMemoryCache()
	want := decimal.RequireFromString("0.01234567")
	if err := cache.Put(Quote{Rate: want, FetchedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	src := &stubSource{name: "primary", rate: decimal.NewFromInt(1)}
	p := NewProvider([]Source{src}, cache, testOptions(), noopLogger())

	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
	if n := atomic.LoadInt32(&src.calls); n != 0 {
		t.Fatalf("expected zero upstream calls, got %d", n)
	}
}

func TestResolveExpiredCacheFallsThrough(t *testing.T) {
	cache := NewMemoryCache()
	stale := decimal.RequireFromString("0.5")
	if err := cache.Put(Quote{Rate: stale, FetchedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	fresh := decimal.RequireFromString("0.01100000")
	src := &stubSource{name: "primary", rate: fresh}
	p := NewProvider([]Source{src}, cache, testOptions(), noopLogger())

	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(fresh) {
		t.Fatalf("got %s, want %s", got, fresh)
	}

	quote, ok := cache.Get()
	if !ok || !quote.Rate.Equal(fresh) {
		t.Fatalf("cache should hold the refreshed quote, got %+v (ok=%v)", quote, ok)
	}
}

func TestResolveFallsBackToSecondary(t *testing.T) {
	primary := &stubSource{name: "primary", err: errors.New("boom")}
	secondary := &stubSource{name: "secondary", rate: decimal.RequireFromString("0.01000000")}

	p := NewProvider([]Source{primary, secondary}, NewMemoryCache(), testOptions(), noopLogger())

	got, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "0.01" {
		t.Fatalf("got %s, want 0.01", got)
	}
	if n := atomic.LoadInt32(&primary.calls); n != 3 {
		t.Fatalf("primary should be attempted 3 times, got %d", n)
	}
	if n := atomic.LoadInt32(&secondary.calls); n != 1 {
		t.Fatalf("secondary should be attempted once, got %d", n)
	}
}

func TestResolveAggregatesAllAttemptErrors(t *testing.T) {
	primary := &stubSource{name: "primary", err: errors.New("primary down")}
	secondary := &stubSource{name: "secondary", err: errors.New("secondary down")}

	p := NewProvider([]Source{primary, secondary}, NewMemoryCache(), testOptions(), noopLogger())

	_, err := p.Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "primary down") || !strings.Contains(msg, "secondary down") {
		t.Fatalf("aggregated error should mention both sources: %s", msg)
	}
	if !strings.Contains(msg, "attempt 3/3") {
		t.Fatalf("aggregated error should enumerate attempts: %s", msg)
	}
}

func TestResolveStopsWhenBudgetExhausted(t *testing.T) {
	src := &stubSource{name: "primary", err: errors.New("slow")}

	opts := testOptions()
	opts.Budget = 10 * time.Millisecond
	p := NewProvider([]Source{src}, NewMemoryCache(), opts, noopLogger())

	base := time.Now()
	calls := 0
	p.now = func() time.Time {
		calls++
		// Every clock read advances well past the budget after the first attempt.
		return base.Add(time.Duration(calls) * 20 * time.Millisecond)
	}

	_, err := p.Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	if n := atomic.LoadInt32(&src.calls); n > 1 {
		t.Fatalf("no attempt may start after the deadline, got %d attempts", n)
	}
}

func TestResolveHonoursContextCancellation(t *testing.T) {
	src := &stubSource{name: "primary", err: errors.New("down")}
	p := NewProvider([]Source{src}, NewMemoryCache(), testOptions(), noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Resolve(ctx)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	if n := atomic.LoadInt32(&src.calls); n > 1 {
		t.Fatalf("cancelled context must stop retries, got %d attempts", n)
	}
}

func TestJSONSourceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","rates":{"USD":0.0112}}`))
	}))
	defer srv.Close()

	src := NewJSONSource(JSONSourceOptions{
		Name:     "open.er-api",
		URL:      srv.URL,
		RatePath: "rates.USD",
	})

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "0.0112" {
		t.Fatalf("got %s, want 0.0112", got)
	}
}

func TestJSONSourceInverted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Valute":{"USD":{"Value":80.0}}}`))
	}))
	defer srv.Close()

	src := NewJSONSource(JSONSourceOptions{
		Name:     "cbr",
		URL:      srv.URL,
		RatePath: "Valute.USD.Value",
		Invert:   true,
	})

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "0.0125" {
		t.Fatalf("got %s, want 0.0125", got)
	}
}

func TestJSONSourceRejectsBadResponses(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		payload string
	}{
		{"http error", http.StatusBadGateway, `{}`},
		{"malformed json", http.StatusOK, `{"rates":`},
		{"missing field", http.StatusOK, `{"rates":{}}`},
		{"zero rate", http.StatusOK, `{"rates":{"USD":0}}`},
		{"negative rate", http.StatusOK, `{"rates":{"USD":-1.5}}`},
		{"non numeric rate", http.StatusOK, `{"rates":{"USD":"n/a"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.payload))
			}))
			defer srv.Close()

			src := NewJSONSource(JSONSourceOptions{Name: "test", URL: srv.URL, RatePath: "rates.USD"})
			if _, err := src.Fetch(context.Background()); err == nil {
				t.Fatal("expected a failed attempt")
			}
		})
	}
}

func TestFileCachePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quote.json")

	writer := NewFileCache(path)
	want := Quote{Rate: decimal.RequireFromString("0.01234567"), FetchedAt: time.Now().UTC().Truncate(time.Second)}
	if err := writer.Put(want); err != nil {
		t.Fatal(err)
	}

	reader := NewFileCache(path)
	got, ok := reader.Get()
	if !ok {
		t.Fatal("expected persisted quote to load")
	}
	if !got.Rate.Equal(want.Rate) {
		t.Fatalf("rate %s, want %s", got.Rate, want.Rate)
	}
	if !got.FetchedAt.Equal(want.FetchedAt) {
		t.Fatalf("fetched_at %s, want %s", got.FetchedAt, want.FetchedAt)
	}
}

func TestFileCacheIgnoresCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quote.json")
	if err := os.WriteFile(path, []byte(`{"rate":`), 0o600); err != nil {
		t.Fatal(err)
	}

	cache := NewFileCache(path)
	if _, ok := cache.Get(); ok {
		t.Fatal("corrupt record must be treated as a miss")
	}
}
