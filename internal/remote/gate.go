package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metrics"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64; Trident/7.0; rv:11.0) like Gecko"
	// maxBody bounds how much of a response is read.
	maxBody = 16 << 20
)

// GateConfig configures a Gate.
type GateConfig struct {
	// Service labels metrics and logs.
	Service string
	// Spacing is the minimum time between requests. Each wait is salted by
	// a random factor between 1 and 2.
	Spacing time.Duration
	// Window is how close requests must be to count as sequential.
	Window time.Duration
	// MaxSequential is how many sequential requests may be sent before a
	// cooldown.
	MaxSequential int
	// Cooldown is the salted sleep after MaxSequential sequential requests.
	Cooldown time.Duration
	// Retries is the number of attempts per request.
	Retries int
	Timeout time.Duration
	Cookies []*http.Cookie
}

// CatalogGateConfig is the gate configuration for the external catalog.
func CatalogGateConfig() GateConfig {
	return GateConfig{
		Service:       "ex",
		Spacing:       3 * time.Second,
		Window:        10 * time.Second,
		MaxSequential: 3,
		Cooldown:      2 * time.Second,
		Retries:       3,
		Timeout:       30 * time.Second,
	}
}

// AlternateGateConfig is the gate configuration for the alternate catalog.
func AlternateGateConfig() GateConfig {
	return GateConfig{
		Service:       "chaika",
		Window:        10 * time.Second,
		MaxSequential: 3,
		Cooldown:      time.Second,
		Retries:       3,
		Timeout:       30 * time.Second,
	}
}

// CatalogCookies are the session cookies the catalog expects.
func CatalogCookies(memberID, passHash string) []*http.Cookie {
	return []*http.Cookie{
		{Name: "ipb_member_id", Value: memberID},
		{Name: "ipb_pass_hash", Value: passHash},
		{Name: "uconfig", Value: ""},
	}
}

// Response is a validated response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Gate sends requests to one service one at a time, spacing them out and
// backing off after bursts. Fatal responses are returned immediately;
// everything else is retried.
type Gate struct {
	cfg     GateConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Response]

	mu    sync.Mutex
	prev  time.Time
	count int

	// salt returns a factor in [1, 2]. Replaced in tests.
	salt  func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate creates a gate. A nil client uses a client with cfg.Timeout.
func NewGate(cfg GateConfig, client *http.Client) *Gate {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.Spacing > 0 {
		limit = rate.Every(cfg.Spacing)
	}

	g := &Gate{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		salt:    func() float64 { return 1 + rand.Float64() },
		sleep:   sleepContext,
	}
	metrics.RemoteBreakerState.WithLabelValues(cfg.Service).Set(0)
	g.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        cfg.Service,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// fatal responses are answers, not outages
		IsSuccessful: func(err error) bool {
			return err == nil || IsFatal(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("Circuit breaker %s: %s -> %s", name, from, to)
			metrics.RemoteBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return g
}

// Service returns the service label.
func (g *Gate) Service() string {
	return g.cfg.Service
}

// Get fetches url.
func (g *Gate) Get(ctx context.Context, url string) (*Response, error) {
	return g.do(ctx, http.MethodGet, url, nil)
}

// Post sends payload as JSON to url.
func (g *Gate) Post(ctx context.Context, url string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return g.do(ctx, http.MethodPost, url, body)
}

func (g *Gate) do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= g.cfg.Retries; attempt++ {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}

		logging.Info("Sending %s request to %s", method, url)
		resp, err := g.breaker.Execute(func() (*Response, error) {
			return g.send(ctx, method, url, body)
		})
		switch {
		case err == nil:
			metrics.RemoteRequestsTotal.WithLabelValues(g.cfg.Service, "ok").Inc()
			return resp, nil
		case IsFatal(err):
			metrics.RemoteRequestsTotal.WithLabelValues(g.cfg.Service, "fatal").Inc()
			logging.Error("%s request to %s failed: %v", g.cfg.Service, url, err)
			return nil, err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.RemoteRequestsTotal.WithLabelValues(g.cfg.Service, "retry").Inc()
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, g.cfg.Service, err)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		metrics.RemoteRequestsTotal.WithLabelValues(g.cfg.Service, "retry").Inc()
		lastErr = err
		logging.Warn("Request failed, retry with %d tries left: %v", g.cfg.Retries-attempt, err)
	}

	logging.Warn("Request to %s ran out of retry attempts", url)
	return nil, fmt.Errorf("%w: %s %s abandoned after %d attempts: %v",
		ErrRetryable, method, url, g.cfg.Retries, lastErr)
}

// wait enforces spacing and the sequential-burst cooldown. Called with mu
// held.
func (g *Gate) wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.RemoteGateSleepSeconds.WithLabelValues(g.cfg.Service).Observe(time.Since(start).Seconds())
	}()

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	since := time.Since(g.prev)
	if g.cfg.Spacing > 0 {
		salted := time.Duration(float64(g.cfg.Spacing) * g.salt())
		if since < salted {
			if err := g.sleep(ctx, salted-since); err != nil {
				return err
			}
		}
	}

	sequential := !g.prev.IsZero() && since <= g.cfg.Window
	if sequential && g.cfg.MaxSequential > 0 && g.count >= g.cfg.MaxSequential {
		logging.Debug("%d sequential requests to %s, cooling down", g.count, g.cfg.Service)
		if err := g.sleep(ctx, time.Duration(float64(g.cfg.Cooldown)*g.salt())); err != nil {
			return err
		}
		g.count = 0
	}
	if sequential {
		g.count++
	} else {
		g.count = 0
	}
	g.prev = time.Now()
	return nil
}

func (g *Gate) send(ctx context.Context, method, url string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range g.cfg.Cookies {
		req.AddCookie(c)
	}

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrRetryable, err)
	}
	resp := &Response{
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
		Body:        data,
	}
	return resp, validate(resp)
}

// validate classifies a response.
func validate(resp *Response) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRetryable, resp.StatusCode)
	}
	if strings.Contains(resp.ContentType, "image/gif") {
		return ErrBadCredentials
	}
	if strings.Contains(resp.ContentType, "text/html") && bytes.Contains(resp.Body, []byte("Your IP address")) {
		return ErrBanned
	}

	var envelope map[string]interface{}
	if json.Unmarshal(resp.Body, &envelope) == nil {
		if msg, ok := envelope["error"]; ok && msg != nil {
			return fmt.Errorf("%w: %v", ErrRetryable, msg)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
