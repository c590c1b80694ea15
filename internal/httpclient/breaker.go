package httpclient

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the host while its circuit
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the state of one host's circuit.
type BreakerState int

const (
	// BreakerClosed lets requests through.
	BreakerClosed BreakerState = iota
	// BreakerOpen fails requests fast.
	BreakerOpen
	// BreakerHalfOpen lets a single probe through.
	BreakerHalfOpen
)

// String returns the string representation of a breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive tripping failures that
	// open a host's circuit.
	FailureThreshold int
	// Cooldown is how long a circuit stays open before one probe is allowed.
	Cooldown time.Duration
	// Trips decides whether an error counts against the circuit. Nil means
	// IsBlockingError.
	Trips func(error) bool
}

// Breaker stops calling a host after it failed FailureThreshold times in a
// row. Circuits are tracked per host:port.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	cfg      BreakerConfig
	now      func() time.Time
}

type circuit struct {
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a breaker. Zero fields get defaults of 3 failures and
// a 10 minute cooldown.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	if cfg.Trips == nil {
		cfg.Trips = IsBlockingError
	}
	return &Breaker{circuits: make(map[string]*circuit), cfg: cfg, now: time.Now}
}

// Allow returns ErrCircuitOpen when requests to host should not be made.
// A nil Breaker allows everything.
func (b *Breaker) Allow(host string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(host)
	switch c.state {
	case BreakerOpen:
		if b.now().Sub(c.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		c.state = BreakerHalfOpen
		c.probing = true
		return nil
	case BreakerHalfOpen:
		if c.probing {
			return ErrCircuitOpen
		}
		c.probing = true
		return nil
	}
	return nil
}

// Record updates host's circuit with the outcome of a request.
func (b *Breaker) Record(host string, err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(host)
	c.probing = false
	if err == nil || !b.cfg.Trips(err) {
		c.state = BreakerClosed
		c.failures = 0
		return
	}

	c.failures++
	if c.state == BreakerHalfOpen || c.failures >= b.cfg.FailureThreshold {
		c.state = BreakerOpen
		c.openedAt = b.now()
	}
}

// State returns host's current state.
func (b *Breaker) State(host string) BreakerState {
	if b == nil {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[host]
	if !ok {
		return BreakerClosed
	}
	if c.state == BreakerOpen && b.now().Sub(c.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return c.state
}

// get must be called with mu held.
func (b *Breaker) get(host string) *circuit {
	c, ok := b.circuits[host]
	if !ok {
		c = &circuit{}
		b.circuits[host] = c
	}
	return c
}

// IsBlockingError reports whether err suggests the host is refusing us:
// rate limiting, 403, server errors or network failures. A 404 does not.
func IsBlockingError(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusForbidden || httpErr.StatusCode >= 500
	}
	return errors.Is(err, ErrRequestFailed)
}

// hostKey returns the host:port of urlStr, or urlStr itself when it cannot
// be parsed.
func hostKey(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return urlStr
	}
	return u.Host
}
