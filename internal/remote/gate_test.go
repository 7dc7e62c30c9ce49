package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// testGate builds a gate that never really sleeps and records what it
// would have slept.
func testGate(cfg GateConfig) (*Gate, *[]time.Duration) {
	if cfg.Service == "" {
		cfg.Service = "test"
	}
	g := NewGate(cfg, nil)
	g.limiter = rate.NewLimiter(rate.Inf, 1)
	g.salt = func() float64 { return 1.5 }
	var slept []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return g, &slept
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        error
	}{
		{"ok json", 200, "application/json", `{"gmetadata": []}`, nil},
		{"ok html", 200, "text/html; charset=UTF-8", "<html></html>", nil},
		{"server error", 503, "text/html", "", ErrRetryable},
		{"bad credentials", 200, "image/gif", "GIF89a", ErrBadCredentials},
		{"banned", 200, "text/html", "Your IP address has been temporarily banned", ErrBanned},
		{"json error", 200, "application/json", `{"error": "Key missing"}`, ErrRetryable},
		{"json null error", 200, "application/json", `{"error": null}`, nil},
		{"json array", 200, "application/json", `[1, 2]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validate(&Response{StatusCode: tt.status, ContentType: tt.contentType, Body: []byte(tt.body)})
			if tt.want == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	if !IsFatal(ErrBanned) || !IsFatal(ErrBadCredentials) {
		t.Error("Expected ban and credential errors to be fatal")
	}
	if IsFatal(ErrRetryable) || IsFatal(ErrUnavailable) || IsFatal(nil) {
		t.Error("Expected other errors not to be fatal")
	}
	if FatalMessage(ErrBadCredentials) == "" || FatalMessage(errors.New("x")) != "x" {
		t.Error("Unexpected fatal messages")
	}
}

func TestGateRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	g, _ := testGate(GateConfig{Retries: 3})
	resp, err := g.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	var body struct{ OK bool }
	if err := resp.JSON(&body); err != nil || !body.OK {
		t.Errorf("Unexpected body %s (%v)", resp.Body, err)
	}
	if hits.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits.Load())
	}
}

func TestGateGivesUp(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": "try again"}`))
	}))
	defer srv.Close()

	g, _ := testGate(GateConfig{Retries: 3})
	_, err := g.Post(context.Background(), srv.URL, map[string]string{"a": "b"})
	if !errors.Is(err, ErrRetryable) {
		t.Errorf("Expected ErrRetryable, got %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits.Load())
	}
}

func TestGateFatalStopsImmediately(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/gif")
		w.Write([]byte("GIF89a"))
	}))
	defer srv.Close()

	g, _ := testGate(GateConfig{Retries: 3})
	_, err := g.Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Expected ErrBadCredentials, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", hits.Load())
	}
}

func TestGateSendsCookiesAndPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("ipb_member_id")
		if err != nil || c.Value != "42" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := GateConfig{Retries: 1, Cookies: CatalogCookies("42", "secret")}
	g, _ := testGate(cfg)
	if _, err := g.Post(context.Background(), srv.URL, []int{1}); err != nil {
		t.Errorf("Expected cookies and payload to be accepted, got %v", err)
	}
}

func TestGateSpacingAndCooldown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	t.Run("cooldown after sequential burst", func(t *testing.T) {
		t.Parallel()
		g, slept := testGate(GateConfig{Window: 10 * time.Second, MaxSequential: 2, Cooldown: time.Second, Retries: 1})
		for i := 0; i < 4; i++ {
			if _, err := g.Get(context.Background(), srv.URL); err != nil {
				t.Fatal(err)
			}
		}
		if len(*slept) != 1 || (*slept)[0] != 1500*time.Millisecond {
			t.Errorf("Expected one salted cooldown of 1.5s, got %v", *slept)
		}
	})

	t.Run("salted spacing", func(t *testing.T) {
		t.Parallel()
		g, slept := testGate(GateConfig{Spacing: 3 * time.Second, Window: 10 * time.Second, Retries: 1})
		for i := 0; i < 2; i++ {
			if _, err := g.Get(context.Background(), srv.URL); err != nil {
				t.Fatal(err)
			}
		}
		if len(*slept) != 1 {
			t.Fatalf("Expected one spacing sleep, got %v", *slept)
		}
		if d := (*slept)[0]; d <= 4*time.Second || d > 4500*time.Millisecond {
			t.Errorf("Expected a sleep just under 4.5s, got %v", d)
		}
	})
}

func TestGateBreakerOpens(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g, _ := testGate(GateConfig{Retries: 1})
	for i := 0; i < 5; i++ {
		if _, err := g.Get(context.Background(), srv.URL); !errors.Is(err, ErrRetryable) {
			t.Fatalf("Expected ErrRetryable, got %v", err)
		}
	}
	if _, err := g.Get(context.Background(), srv.URL); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable once the breaker is open, got %v", err)
	}
	if hits.Load() != 5 {
		t.Errorf("Expected 5 requests to reach the server, got %d", hits.Load())
	}
}

func TestGateCancelled(t *testing.T) {
	t.Parallel()

	g, _ := testGate(GateConfig{Retries: 3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Get(ctx, "http://127.0.0.1:0"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
