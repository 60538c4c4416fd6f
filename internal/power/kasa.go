package power

import (
	"context"
	"sync"

	"github.com/nerrad567/stripgate/internal/kasa"
)

// KasaConnector creates Sessions for Kasa strips.
type KasaConnector struct {
	client *kasa.Client
}

// NewKasaConnector returns a Connector backed by client.
func NewKasaConnector(client *kasa.Client) *KasaConnector {
	return &KasaConnector{client: client}
}

// Connect returns an empty session for address. No I/O happens until Refresh.
func (k *KasaConnector) Connect(_ context.Context, address string) (Session, error) {
	return &kasaSession{client: k.client, address: address}, nil
}

type kasaSession struct {
	client  *kasa.Client
	address string

	mu      sync.RWMutex
	alias   string
	outlets []Outlet
}

func (s *kasaSession) Address() string {
	return s.address
}

func (s *kasaSession) Alias() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alias
}

// Refresh replaces the outlet list with the device's current children. On
// error the previous snapshot is kept.
func (s *kasaSession) Refresh(ctx context.Context) error {
	info, err := s.client.SysInfo(ctx, s.address)
	if err != nil {
		return deviceError("refresh "+s.address, err)
	}

	outlets := make([]Outlet, len(info.Children))
	for i, child := range info.Children {
		outlets[i] = &kasaOutlet{
			session: s,
			childID: kasa.ChildID(info.DeviceID, child.ID),
			alias:   child.Alias,
			on:      child.On(),
		}
	}

	s.mu.Lock()
	s.alias = info.Alias
	s.outlets = outlets
	s.mu.Unlock()
	return nil
}

func (s *kasaSession) Outlets() []Outlet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Outlet, len(s.outlets))
	copy(out, s.outlets)
	return out
}

// kasaOutlet is immutable; a Refresh replaces it rather than updating it.
type kasaOutlet struct {
	session *kasaSession
	childID string
	alias   string
	on      bool
}

func (o *kasaOutlet) Alias() string { return o.alias }
func (o *kasaOutlet) IsOn() bool    { return o.on }

func (o *kasaOutlet) TurnOn(ctx context.Context) error {
	return o.set(ctx, true)
}

func (o *kasaOutlet) TurnOff(ctx context.Context) error {
	return o.set(ctx, false)
}

func (o *kasaOutlet) set(ctx context.Context, on bool) error {
	if err := o.session.client.SetRelayState(ctx, o.session.address, o.childID, on); err != nil {
		return deviceError("switch "+o.alias, err)
	}
	return nil
}
