package power

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errTransient = errors.New("kasa: empty response from device")

// fakeSession is an in-memory strip. Failures are scripted per call.
type fakeSession struct {
	address string

	mu           sync.Mutex
	alias        string
	aliases      []string
	states       []bool
	outlets      []Outlet
	refreshes    int
	switches     int
	failRefresh  int // fail this many upcoming refreshes
	failSwitches int // fail this many upcoming switches
	refreshHook  func()
	refreshDelay time.Duration // honours ctx
}

func newFakeSession(address string, aliases ...string) *fakeSession {
	return &fakeSession{
		address: address,
		alias:   "Test Strip",
		aliases: aliases,
		states:  make([]bool, len(aliases)),
	}
}

func (s *fakeSession) Address() string { return s.address }

func (s *fakeSession) Alias() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alias
}

func (s *fakeSession) Refresh(ctx context.Context) error {
	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return deviceError("refresh", ctx.Err())
		}
	}

	s.mu.Lock()
	hook := s.refreshHook
	s.refreshes++
	if s.failRefresh > 0 {
		s.failRefresh--
		s.mu.Unlock()
		return deviceError("refresh", errTransient)
	}
	s.outlets = make([]Outlet, len(s.aliases))
	for i, alias := range s.aliases {
		s.outlets[i] = &fakeOutlet{session: s, index: i, alias: alias, on: s.states[i]}
	}
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (s *fakeSession) Outlets() []Outlet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outlet(nil), s.outlets...)
}

func (s *fakeSession) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func (s *fakeSession) switchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switches
}

func (s *fakeSession) state(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[index]
}

type fakeOutlet struct {
	session *fakeSession
	index   int
	alias   string
	on      bool
}

func (o *fakeOutlet) Alias() string { return o.alias }
func (o *fakeOutlet) IsOn() bool    { return o.on }

func (o *fakeOutlet) TurnOn(ctx context.Context) error  { return o.set(ctx, true) }
func (o *fakeOutlet) TurnOff(ctx context.Context) error { return o.set(ctx, false) }

func (o *fakeOutlet) set(_ context.Context, on bool) error {
	s := o.session
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switches++
	if s.failSwitches > 0 {
		s.failSwitches--
		return deviceError("switch", errTransient)
	}
	s.states[o.index] = on
	return nil
}

// fakeConnector hands out prepared sessions and counts Connect calls.
type fakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	connects atomic.Int32
}

func newFakeConnector(sessions ...*fakeSession) *fakeConnector {
	c := &fakeConnector{sessions: make(map[string]*fakeSession)}
	for _, s := range sessions {
		c.sessions[s.address] = s
	}
	return c
}

func (c *fakeConnector) Connect(_ context.Context, address string) (Session, error) {
	c.connects.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[address]
	if !ok {
		s = newFakeSession(address)
		c.sessions[address] = s
	}
	return s, nil
}

// recordingObserver captures events; it implements FailureObserver.
type recordingObserver struct {
	mu      sync.Mutex
	changed []Event
	failed  []Event
	err     error
}

func (o *recordingObserver) OutletChanged(_ context.Context, ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changed = append(o.changed, ev)
	return o.err
}

func (o *recordingObserver) OutletFailed(_ context.Context, ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, ev)
	return o.err
}

// changeOnlyObserver does not implement FailureObserver.
type changeOnlyObserver struct {
	calls atomic.Int32
}

func (o *changeOnlyObserver) OutletChanged(context.Context, Event) error {
	o.calls.Add(1)
	return nil
}
