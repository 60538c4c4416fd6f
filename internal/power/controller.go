package power

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Command is a request to put one outlet into a state.
type Command struct {
	Address string
	Outlet  int // 1-based
	State   State

	// Source names the interface the command came from (http, mqtt, cli).
	// It is passed through to observers only.
	Source string
}

// Event is delivered to observers once a command has finished, after all
// retries.
type Event struct {
	Command  Command
	Result   ActionResult // zero when Err is set
	Err      error
	Attempts int
	At       time.Time
}

// Observer is notified after every successful state change.
type Observer interface {
	OutletChanged(ctx context.Context, ev Event) error
}

// FailureObserver may additionally be implemented by an Observer that wants
// to hear about commands that failed.
type FailureObserver interface {
	OutletFailed(ctx context.Context, ev Event) error
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Retry is the policy each command runs under. A MaxAttempts below 1
	// selects DefaultRetryPolicy. A nil Retryable is replaced by the default
	// classifier described on RetryValidationErrors.
	Retry RetryPolicy

	// RetryValidationErrors makes an out-of-range outlet number go through
	// every attempt like a device failure. By default it fails at once.
	RetryValidationErrors bool
}

// Controller switches outlets through a SessionCache.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Commands for the same address are serialised; different addresses
//     proceed in parallel.
type Controller struct {
	cache  *SessionCache
	policy RetryPolicy
	locks  *addressLocks
	logger Logger
	now    func() time.Time

	obsMu     sync.RWMutex
	observers []Observer
}

// NewController creates a Controller.
//
// Parameters:
//   - cache: Session cache shared with any other users of the strips
//   - cfg: Retry policy and classification
//
// Returns:
//   - *Controller: Ready for use
func NewController(cache *SessionCache, cfg ControllerConfig) *Controller {
	policy := cfg.Retry
	if policy.MaxAttempts < 1 {
		def := DefaultRetryPolicy()
		policy.MaxAttempts, policy.Delay = def.MaxAttempts, def.Delay
	}
	if policy.Retryable == nil && !cfg.RetryValidationErrors {
		policy.Retryable = IsRetryable
	}

	return &Controller{
		cache:  cache,
		policy: policy,
		locks:  newAddressLocks(),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// IsRetryable is the default retry classifier: everything except caller
// errors (bad outlet number or state).
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrInvalidOutlet) && !errors.Is(err, ErrInvalidState)
}

// SetLogger sets the logger for command outcomes.
func (c *Controller) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// AddObserver registers o for change (and, if implemented, failure) events.
func (c *Controller) AddObserver(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// TurnOn switches outlet (1-based) of the strip at address on.
func (c *Controller) TurnOn(ctx context.Context, address string, outlet int) (ActionResult, error) {
	return c.SetOutletState(ctx, address, outlet, StateOn)
}

// TurnOff switches outlet (1-based) of the strip at address off.
func (c *Controller) TurnOff(ctx context.Context, address string, outlet int) (ActionResult, error) {
	return c.SetOutletState(ctx, address, outlet, StateOff)
}

// SetOutletState puts one outlet into the desired state.
func (c *Controller) SetOutletState(ctx context.Context, address string, outlet int, desired State) (ActionResult, error) {
	return c.Execute(ctx, Command{Address: address, Outlet: outlet, State: desired})
}

// Execute runs cmd under the retry policy. Each attempt:
//  1. fetches the session for cmd.Address (creating it on first use)
//  2. refreshes it
//  3. checks 1 <= cmd.Outlet <= number of outlets
//  4. switches that outlet
//
// Observers are notified once, after the outcome is final.
//
// Returns:
//   - ActionResult: Address, outlet alias, outlet number and new state
//   - error: *OutletIndexError (ErrInvalidOutlet), ErrDeviceIO, or the
//     context error
func (c *Controller) Execute(ctx context.Context, cmd Command) (ActionResult, error) {
	if cmd.State != StateOn && cmd.State != StateOff {
		return ActionResult{}, fmt.Errorf("%w: %q", ErrInvalidState, cmd.State)
	}

	attempts := 1
	policy := c.withAttemptCounter(&attempts, "address", cmd.Address, "outlet", cmd.Outlet)

	result, err := Retry(ctx, policy, func(ctx context.Context) (ActionResult, error) {
		return c.switchOnce(ctx, cmd)
	})

	ev := Event{Command: cmd, Result: result, Err: err, Attempts: attempts, At: c.now()}
	if err != nil {
		c.logger.Warn("outlet command failed",
			"address", cmd.Address, "outlet", cmd.Outlet, "state", cmd.State,
			"attempts", attempts, "error", err)
		c.notifyFailed(ctx, ev)
		return ActionResult{}, err
	}

	c.logger.Info("outlet switched",
		"address", cmd.Address, "outlet", cmd.Outlet, "alias", result.Alias,
		"state", result.State, "attempts", attempts)
	c.notifyChanged(ctx, ev)
	return result, nil
}

func (c *Controller) switchOnce(ctx context.Context, cmd Command) (ActionResult, error) {
	unlock, err := c.locks.lock(ctx, cmd.Address)
	if err != nil {
		return ActionResult{}, err
	}
	defer unlock()

	session, err := c.cache.Get(ctx, cmd.Address)
	if err != nil {
		return ActionResult{}, err
	}
	if err := session.Refresh(ctx); err != nil {
		return ActionResult{}, err
	}

	outlets := session.Outlets()
	if cmd.Outlet < 1 || cmd.Outlet > len(outlets) {
		return ActionResult{}, &OutletIndexError{Index: cmd.Outlet, Count: len(outlets)}
	}
	outlet := outlets[cmd.Outlet-1]

	if cmd.State == StateOn {
		err = outlet.TurnOn(ctx)
	} else {
		err = outlet.TurnOff(ctx)
	}
	if err != nil {
		return ActionResult{}, err
	}

	return ActionResult{
		IP:         cmd.Address,
		Alias:      outlet.Alias(),
		PlugNumber: cmd.Outlet,
		State:      cmd.State,
	}, nil
}

// Status refreshes the strip at address and reports every outlet.
func (c *Controller) Status(ctx context.Context, address string) (StripStatus, error) {
	attempts := 1
	policy := c.withAttemptCounter(&attempts, "address", address)

	return Retry(ctx, policy, func(ctx context.Context) (StripStatus, error) {
		unlock, err := c.locks.lock(ctx, address)
		if err != nil {
			return StripStatus{}, err
		}
		defer unlock()

		session, err := c.cache.Get(ctx, address)
		if err != nil {
			return StripStatus{}, err
		}
		if err := session.Refresh(ctx); err != nil {
			return StripStatus{}, err
		}

		outlets := session.Outlets()
		status := StripStatus{
			IP:      address,
			Alias:   session.Alias(),
			Outlets: make([]OutletStatus, len(outlets)),
		}
		for i, o := range outlets {
			status.Outlets[i] = OutletStatus{PlugNumber: i + 1, Alias: o.Alias(), State: StateOf(o.IsOn())}
		}
		return status, nil
	})
}

// Sessions returns the addresses with an open session.
func (c *Controller) Sessions() []string {
	return c.cache.Addresses()
}

// withAttemptCounter returns a copy of the policy that logs each retry and
// records the attempt count in *attempts.
func (c *Controller) withAttemptCounter(attempts *int, logArgs ...any) RetryPolicy {
	policy := c.policy
	next := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		*attempts = attempt + 1
		args := append([]any{"attempt", attempt, "error", err}, logArgs...)
		c.logger.Debug("retrying device action", args...)
		if next != nil {
			next(attempt, err)
		}
	}
	return policy
}

func (c *Controller) snapshotObservers() []Observer {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	return append([]Observer(nil), c.observers...)
}

// Observers get a context that ignores the caller's cancellation.
func (c *Controller) notifyChanged(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range c.snapshotObservers() {
		if err := o.OutletChanged(ctx, ev); err != nil {
			c.logger.Warn("outlet observer failed", "observer", fmt.Sprintf("%T", o), "error", err)
		}
	}
}

func (c *Controller) notifyFailed(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range c.snapshotObservers() {
		fo, ok := o.(FailureObserver)
		if !ok {
			continue
		}
		if err := fo.OutletFailed(ctx, ev); err != nil {
			c.logger.Warn("outlet observer failed", "observer", fmt.Sprintf("%T", o), "error", err)
		}
	}
}
