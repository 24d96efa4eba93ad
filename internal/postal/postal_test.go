package postal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (m *memCache) Set(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = raw
	return nil
}

func unlimited() Option { return WithLimiter(rate.NewLimiter(rate.Inf, 1)) }

func TestLookupDecodesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/01310100" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"cep":"01310100","state":"SP","city":"São Paulo","neighborhood":"Bela Vista","street":"Avenida Paulista","service":"open-cep"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), WithCache(&memCache{}), unlimited())
	for i := 0; i < 2; i++ {
		addr, err := c.Lookup(context.Background(), "01310-100")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if addr.Street != "Avenida Paulista" || addr.City != "São Paulo" || addr.State != "SP" {
			t.Fatalf("addr = %+v", addr)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (second lookup cached)", calls.Load())
	}
}

func TestLookupRejectsMalformedCEP(t *testing.T) {
	c := New("http://unused", nil, unlimited())
	if _, err := c.Lookup(context.Background(), "0131"); !errors.Is(err, ErrInvalidCEP) {
		t.Fatalf("err = %v", err)
	}
}

func TestLookupNotFoundDoesNotTrip(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), unlimited(), WithBreaker(2, time.Minute))
	for i := 0; i < 4; i++ {
		if _, err := c.Lookup(context.Background(), "99999999"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("lookup %d: err = %v", i, err)
		}
	}
	if calls.Load() != 4 {
		t.Fatalf("calls = %d, want 4", calls.Load())
	}
}

func TestBreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), unlimited(), WithBreaker(2, time.Minute))
	for i := 0; i < 5; i++ {
		if _, err := c.Lookup(context.Background(), "01310100"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("lookup %d: err = %v", i, err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2 before the breaker opened", calls.Load())
	}
}
