package power

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestController(strips ...*fakeSession) *Controller {
	cache := NewSessionCache(newFakeConnector(strips...))
	return NewController(cache, ControllerConfig{
		Retry: RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	})
}

func TestController_TurnOnThenOff(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp", "Fan", "Heater")
	ctrl := newTestController(strip)
	ctx := context.Background()

	on, err := ctrl.TurnOn(ctx, "10.0.0.5", 2)
	if err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}
	want := ActionResult{IP: "10.0.0.5", Alias: "Fan", PlugNumber: 2, State: StateOn}
	if on != want {
		t.Errorf("TurnOn() = %+v, want %+v", on, want)
	}
	if !strip.state(1) {
		t.Error("outlet 2 not on after TurnOn")
	}

	off, err := ctrl.TurnOff(ctx, "10.0.0.5", 2)
	if err != nil {
		t.Fatalf("TurnOff() error = %v", err)
	}
	if off.State != StateOff || off.Alias != "Fan" {
		t.Errorf("TurnOff() = %+v", off)
	}
	if strip.state(1) {
		t.Error("outlet 2 still on after TurnOff")
	}
}

func TestController_RefreshesEveryAttempt(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp")
	ctrl := newTestController(strip)
	ctx := context.Background()

	for range 3 {
		if _, err := ctrl.TurnOn(ctx, "10.0.0.5", 1); err != nil {
			t.Fatalf("TurnOn() error = %v", err)
		}
	}

	// One refresh on session creation plus one per command.
	if got := strip.refreshCount(); got != 4 {
		t.Errorf("refreshes = %d, want 4", got)
	}
}

func TestController_InvalidOutlet(t *testing.T) {
	tests := []struct {
		name   string
		outlet int
	}{
		{"zero", 0},
		{"count plus one", 4},
		{"negative", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strip := newFakeSession("10.0.0.5", "Lamp", "Fan", "Heater")
			ctrl := newTestController(strip)

			_, err := ctrl.TurnOn(context.Background(), "10.0.0.5", tt.outlet)
			if !errors.Is(err, ErrInvalidOutlet) {
				t.Fatalf("error = %v, want ErrInvalidOutlet", err)
			}

			var idxErr *OutletIndexError
			if !errors.As(err, &idxErr) || idxErr.Index != tt.outlet || idxErr.Count != 3 {
				t.Errorf("OutletIndexError = %+v, want index %d count 3", idxErr, tt.outlet)
			}
			if strip.switchCount() != 0 {
				t.Error("an outlet was switched despite invalid index")
			}
			// Not retried by default: creation refresh plus one attempt.
			if got := strip.refreshCount(); got != 2 {
				t.Errorf("refreshes = %d, want 2", got)
			}
		})
	}
}

func TestController_RetryValidationErrors(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp")
	cache := NewSessionCache(newFakeConnector(strip))
	ctrl := NewController(cache, ControllerConfig{
		Retry:                 RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
		RetryValidationErrors: true,
	})

	_, err := ctrl.TurnOn(context.Background(), "10.0.0.5", 5)
	if !errors.Is(err, ErrInvalidOutlet) {
		t.Fatalf("error = %v, want ErrInvalidOutlet", err)
	}
	// Creation refresh plus three attempts.
	if got := strip.refreshCount(); got != 4 {
		t.Errorf("refreshes = %d, want 4", got)
	}
}

func TestController_RecoversFromTransientFailures(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp", "Fan")
	ctrl := newTestController(strip)
	ctx := context.Background()

	if _, err := ctrl.Status(ctx, "10.0.0.5"); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	strip.mu.Lock()
	strip.failSwitches = 2
	strip.mu.Unlock()

	obs := &recordingObserver{}
	ctrl.AddObserver(obs)

	res, err := ctrl.TurnOn(ctx, "10.0.0.5", 1)
	if err != nil {
		t.Fatalf("TurnOn() error = %v", err)
	}
	if res.State != StateOn || !strip.state(0) {
		t.Errorf("TurnOn() = %+v, outlet on = %v", res, strip.state(0))
	}
	if len(obs.changed) != 1 || obs.changed[0].Attempts != 3 {
		t.Errorf("observer events = %+v, want one change after 3 attempts", obs.changed)
	}
}

func TestController_PropagatesPersistentFailure(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp")
	ctrl := newTestController(strip)
	ctx := context.Background()

	if _, err := ctrl.Status(ctx, "10.0.0.5"); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	strip.mu.Lock()
	strip.failSwitches = 3
	strip.mu.Unlock()

	obs := &recordingObserver{}
	ctrl.AddObserver(obs)

	_, err := ctrl.TurnOff(ctx, "10.0.0.5", 1)
	if !errors.Is(err, ErrDeviceIO) || !errors.Is(err, errTransient) {
		t.Fatalf("error = %v, want ErrDeviceIO wrapping the device error", err)
	}
	if strip.switchCount() != 3 {
		t.Errorf("switches = %d, want 3", strip.switchCount())
	}
	if len(obs.changed) != 0 || len(obs.failed) != 1 {
		t.Fatalf("observer changed=%d failed=%d, want 0/1", len(obs.changed), len(obs.failed))
	}
	if obs.failed[0].Err == nil || obs.failed[0].Attempts != 3 {
		t.Errorf("failure event = %+v", obs.failed[0])
	}
}

func TestController_ObserverErrorsAreNotReturned(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp")
	ctrl := newTestController(strip)

	failing := &recordingObserver{err: errors.New("broker down")}
	plain := &changeOnlyObserver{}
	ctrl.AddObserver(failing)
	ctrl.AddObserver(plain)

	if _, err := ctrl.TurnOn(context.Background(), "10.0.0.5", 1); err != nil {
		t.Fatalf("TurnOn() error = %v, observer errors must not surface", err)
	}
	if plain.calls.Load() != 1 {
		t.Errorf("second observer calls = %d, want 1", plain.calls.Load())
	}

	// changeOnlyObserver is skipped for failures without panicking.
	if _, err := ctrl.TurnOn(context.Background(), "10.0.0.5", 9); err == nil {
		t.Fatal("expected invalid outlet error")
	}
	if plain.calls.Load() != 1 {
		t.Errorf("change-only observer called for a failure")
	}
}

func TestController_CommandSourceReachesObservers(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp")
	ctrl := newTestController(strip)
	obs := &recordingObserver{}
	ctrl.AddObserver(obs)

	_, err := ctrl.Execute(context.Background(), Command{Address: "10.0.0.5", Outlet: 1, State: StateOn, Source: "mqtt"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if obs.changed[0].Command.Source != "mqtt" || obs.changed[0].Result.Alias != "Lamp" {
		t.Errorf("event = %+v", obs.changed[0])
	}
}

func TestController_InvalidState(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp")
	ctrl := newTestController(strip)

	_, err := ctrl.SetOutletState(context.Background(), "10.0.0.5", 1, State("dim"))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
	if strip.refreshCount() != 0 {
		t.Error("device touched for an invalid state")
	}
}

func TestController_Status(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp", "Fan", "Heater")
	strip.states[2] = true
	ctrl := newTestController(strip)

	status, err := ctrl.Status(context.Background(), "10.0.0.5")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.IP != "10.0.0.5" || status.Alias != "Test Strip" || len(status.Outlets) != 3 {
		t.Fatalf("Status() = %+v", status)
	}
	want := []OutletStatus{
		{PlugNumber: 1, Alias: "Lamp", State: StateOff},
		{PlugNumber: 2, Alias: "Fan", State: StateOff},
		{PlugNumber: 3, Alias: "Heater", State: StateOn},
	}
	for i := range want {
		if status.Outlets[i] != want[i] {
			t.Errorf("Outlets[%d] = %+v, want %+v", i, status.Outlets[i], want[i])
		}
	}
	if got := ctrl.Sessions(); len(got) != 1 || got[0] != "10.0.0.5" {
		t.Errorf("Sessions() = %v", got)
	}
}

func TestController_SerialisesSameAddress(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp", "Fan")
	ctrl := newTestController(strip)
	ctx := context.Background()
	if _, err := ctrl.Status(ctx, "10.0.0.5"); err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	strip.refreshHook = func() {
		mu.Lock()
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ctrl.TurnOn(ctx, "10.0.0.5", i%2+1); err != nil {
				t.Errorf("TurnOn() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("max concurrent refreshes = %d, want 1", maxInFlight)
	}
}

func TestController_LockWaitHonoursContext(t *testing.T) {
	strip := newFakeSession("10.0.0.5", "Lamp")
	ctrl := newTestController(strip)

	unlock, err := ctrl.locks.lock(context.Background(), "10.0.0.5")
	if err != nil {
		t.Fatalf("lock() error = %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = ctrl.TurnOn(ctx, "10.0.0.5", 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestNewController_DefaultPolicy(t *testing.T) {
	ctrl := NewController(NewSessionCache(newFakeConnector()), ControllerConfig{})

	if ctrl.policy.MaxAttempts != DefaultMaxAttempts || ctrl.policy.Delay != DefaultRetryDelay {
		t.Errorf("policy = %+v, want %d attempts %v apart", ctrl.policy, DefaultMaxAttempts, DefaultRetryDelay)
	}
	if ctrl.policy.Retryable == nil {
		t.Error("default classifier not installed")
	}
}
