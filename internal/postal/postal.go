// Package postal resolves Brazilian postal codes (CEP) to addresses through
// BrasilAPI.
package postal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hackgods/clinicdesk/internal/validate"
)

var (
	ErrInvalidCEP  = errors.New("cep must have 8 digits")
	ErrNotFound    = errors.New("cep not found")
	ErrUnavailable = errors.New("postal lookup unavailable")
)

const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type Address struct {
	CEP          string `json:"cep"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// Cache is satisfied by redisclient.JSONCache.
type Cache interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

type Recorder interface {
	ObservePostal(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObservePostal(string) {}

type Client struct {
	baseURL  string
	http     *http.Client
	cache    Cache
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[Address]
	log      *zap.Logger
	recorder Recorder
}

type Option func(*Client)

func WithCache(c Cache) Option { return func(cl *Client) { cl.cache = c } }

func WithLimiter(l *rate.Limiter) Option { return func(cl *Client) { cl.limiter = l } }

func WithRecorder(r Recorder) Option { return func(cl *Client) { cl.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(cl *Client) { cl.log = l } }

// WithBreaker overrides the trip threshold and the open-state cooldown.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(cl *Client) { cl.breaker = newBreaker(cl, failures, cooldown) }
}

func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		log:      zap.NewNop(),
		recorder: nopRecorder{},
	}
	c.breaker = newBreaker(c, 5, 30*time.Second)
	for _, o := range opts {
		o(c)
	}
	return c
}

func newBreaker(c *Client, failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[Address] {
	return gobreaker.NewCircuitBreaker[Address](gobreaker.Settings{
		Name:        "postal",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// an unknown CEP is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("postal breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// Lookup returns the address of cep, which may be formatted. Every failure
// other than a malformed or unknown CEP is reported as ErrUnavailable.
func (c *Client) Lookup(ctx context.Context, cep string) (Address, error) {
	digits := validate.OnlyDigits(cep)
	if len(digits) != 8 {
		return Address{}, ErrInvalidCEP
	}

	if c.cache != nil {
		var cached Address
		ok, err := c.cache.Get(ctx, digits, &cached)
		if err != nil {
			c.log.Warn("postal cache read failed", zap.String("cep", digits), zap.Error(err))
		}
		if ok {
			c.recorder.ObservePostal(OutcomeHit)
			return cached, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.recorder.ObservePostal(OutcomeError)
		return Address{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	addr, err := c.breaker.Execute(func() (Address, error) {
		return c.fetch(ctx, digits)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		c.recorder.ObservePostal(OutcomeNotFound)
		return Address{}, err
	case err != nil:
		c.recorder.ObservePostal(OutcomeError)
		c.log.Warn("postal lookup failed", zap.String("cep", digits), zap.Error(err))
		return Address{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.recorder.ObservePostal(OutcomeMiss)
	if c.cache != nil {
		if err := c.cache.Set(ctx, digits, addr); err != nil {
			c.log.Warn("postal cache write failed", zap.String("cep", digits), zap.Error(err))
		}
	}
	return addr, nil
}

func (c *Client) fetch(ctx context.Context, digits string) (Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+digits, nil)
	if err != nil {
		return Address{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("get %s: %w", digits, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Address{}, ErrNotFound
	case resp.StatusCode >= 300:
		return Address{}, fmt.Errorf("get %s: status %d", digits, resp.StatusCode)
	}

	var addr Address
	if err := json.NewDecoder(resp.Body).Decode(&addr); err != nil {
		return Address{}, fmt.Errorf("decode %s: %w", digits, err)
	}
	addr.CEP = digits
	addr.State = strings.ToUpper(addr.State)
	return addr, nil
}
