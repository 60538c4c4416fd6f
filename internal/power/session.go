package power

import "context"

// State is the desired or reported relay state of an outlet.
type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

// StateOf maps a relay flag to a State.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// Session is an open view of one strip. Outlets reflects the strip as of the
// last successful Refresh.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// Address is the network address the session was created for.
	Address() string

	// Alias is the strip's own name as of the last Refresh.
	Alias() string

	// Refresh re-reads the strip's outlets from the device.
	Refresh(ctx context.Context) error

	// Outlets returns the outlets in physical order.
	Outlets() []Outlet
}

// Outlet is one switchable socket of a strip. TurnOn and TurnOff act on the
// device; Alias and IsOn are only updated by the owning Session's Refresh.
type Outlet interface {
	Alias() string
	IsOn() bool
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// Connector creates Sessions. Connect should not need to reach the device;
// SessionCache calls Refresh right after it.
type Connector interface {
	Connect(ctx context.Context, address string) (Session, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, address string) (Session, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, address string) (Session, error) {
	return f(ctx, address)
}

// ActionResult describes a completed switch command.
type ActionResult struct {
	IP         string `json:"ip"`
	Alias      string `json:"alias"`
	PlugNumber int    `json:"plug_number"`
	State      State  `json:"state"`
}

// OutletStatus is one row of a StripStatus.
type OutletStatus struct {
	PlugNumber int    `json:"plug_number"`
	Alias      string `json:"alias"`
	State      State  `json:"state"`
}

// StripStatus is a freshly refreshed snapshot of a whole strip.
type StripStatus struct {
	IP      string         `json:"ip"`
	Alias   string         `json:"alias"`
	Outlets []OutletStatus `json:"outlets"`
}
