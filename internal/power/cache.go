package power

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCreateTimeout bounds Connect plus the initial Refresh of a new
// session.
const DefaultCreateTimeout = 30 * time.Second

// SessionCache maps strip addresses to long-lived Sessions.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Concurrent first requests for one address share a single Connect and
//     initial Refresh; other addresses are not blocked.
//   - The shared creation is not tied to any one caller's context. Each
//     caller stops waiting when its own context ends.
type SessionCache struct {
	connector     Connector
	createTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]Session

	creating singleflight.Group
	logger   Logger
}

// NewSessionCache creates an empty cache that builds sessions with connector.
func NewSessionCache(connector Connector) *SessionCache {
	return &SessionCache{
		connector:     connector,
		createTimeout: DefaultCreateTimeout,
		sessions:      make(map[string]Session),
		logger:        noopLogger{},
	}
}

// SetCreateTimeout sets the bound on creating a session. Non-positive
// values select DefaultCreateTimeout.
func (c *SessionCache) SetCreateTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultCreateTimeout
	}
	c.createTimeout = d
}

// SetLogger sets the logger used for session lifecycle messages.
func (c *SessionCache) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Get returns the Session for address, creating and refreshing it on first
// use. An existing session is returned without a refresh.
//
// A session whose initial refresh fails is not stored, so the next Get
// tries again. Concurrent callers waiting on the same creation receive the
// same result, including its error. Creation keeps the values of the ctx
// that started it but not its cancellation; it is bounded by the create
// timeout instead.
//
// Parameters:
//   - ctx: Bounds how long this caller waits for the session
//   - address: Strip network address (cache key, compared verbatim)
//
// Returns:
//   - Session: The shared session for address
//   - error: ErrDeviceIO if the strip could not be reached on creation,
//     or ctx.Err() if ctx ended first
func (c *SessionCache) Get(ctx context.Context, address string) (Session, error) {
	if s, ok := c.lookup(address); ok {
		return s, nil
	}

	ch := c.creating.DoChan(address, func() (any, error) {
		return c.create(context.WithoutCancel(ctx), address)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Session), nil //nolint:forcetypeassert // create only returns Sessions
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *SessionCache) create(ctx context.Context, address string) (Session, error) {
	// Another caller may have finished creating it between lookup and DoChan.
	if s, ok := c.lookup(address); ok {
		return s, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.createTimeout)
	defer cancel()

	s, err := c.connector.Connect(ctx, address)
	if err != nil {
		return nil, deviceError("connect "+address, err)
	}
	if err := s.Refresh(ctx); err != nil {
		c.logger.Warn("initial refresh failed", "address", address, "error", err)
		return nil, err
	}

	c.mu.Lock()
	c.sessions[address] = s
	c.mu.Unlock()

	c.logger.Info("device session created", "address", address, "outlets", len(s.Outlets()))
	return s, nil
}

func (c *SessionCache) lookup(address string) (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[address]
	return s, ok
}

// Addresses returns the cached addresses in sorted order.
func (c *SessionCache) Addresses() []string {
	c.mu.RLock()
	addrs := make([]string, 0, len(c.sessions))
	for a := range c.sessions {
		addrs = append(addrs, a)
	}
	c.mu.RUnlock()

	sort.Strings(addrs)
	return addrs
}
