// Package kasatest provides an in-process fake Kasa power strip listening on
// a loopback TCP port, for tests of code that talks to real strips.
package kasatest

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/nerrad567/stripgate/internal/kasa"
)

// DeviceID is the deviceId reported by every fake strip.
const DeviceID = "8006FAKESTRIP0000000000000000000000000000"

// Strip is a fake multi-outlet strip. Child ids are reported as short
// two-digit suffixes and set_relay_state only accepts the full id, the way
// older firmware behaves.
type Strip struct {
	t        testing.TB
	listener net.Listener
	wg       sync.WaitGroup

	mu          sync.Mutex
	alias       string
	children    []kasa.Child
	dropNext    int
	rawNext     [][]byte
	sysinfoReqs int
	relayReqs   int
	closed      bool
}

// NewStrip starts a fake strip with one outlet per alias, all off. It is
// closed automatically when the test ends.
func NewStrip(t testing.TB, aliases ...string) *Strip {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("kasatest: listen: %v", err)
	}

	s := &Strip{t: t, listener: ln, alias: "Fake Strip"}
	for i, alias := range aliases {
		s.children = append(s.children, kasa.Child{ID: fmt.Sprintf("%02d", i), Alias: alias})
	}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the strip listens on.
func (s *Strip) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the listener and waits for in-flight connections.
func (s *Strip) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.listener.Close() //nolint:errcheck // test helper
	s.wg.Wait()
}

// DropNext makes the next n requests close the connection without a reply,
// which clients see as an empty response.
func (s *Strip) DropNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext = n
}

// ReplyRaw queues plaintext bytes sent verbatim as the next reply.
func (s *Strip) ReplyRaw(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawNext = append(s.rawNext, payload)
}

// SetState changes an outlet behind the client's back, as a button press would.
func (s *Strip) SetState(index int, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children[index].State = boolToState(on)
}

// States returns the relay state of every outlet in order.
func (s *Strip) States() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]bool, len(s.children))
	for i, c := range s.children {
		states[i] = c.On()
	}
	return states
}

// SysinfoRequests returns how many get_sysinfo commands were answered.
func (s *Strip) SysinfoRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sysinfoReqs
}

// RelayRequests returns how many set_relay_state commands were answered.
func (s *Strip) RelayRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relayReqs
}

func (s *Strip) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

type stripRequest struct {
	Context *struct {
		ChildIDs []string `json:"child_ids"`
	} `json:"context"`
	System struct {
		GetSysinfo    *json.RawMessage `json:"get_sysinfo"`
		SetRelayState *struct {
			State int `json:"state"`
		} `json:"set_relay_state"`
	} `json:"system"`
}

func (s *Strip) handle(conn net.Conn) {
	payload, err := kasa.ReadFrame(conn)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.dropNext > 0 {
		s.dropNext--
		s.mu.Unlock()
		return
	}
	if len(s.rawNext) > 0 {
		raw := s.rawNext[0]
		s.rawNext = s.rawNext[1:]
		s.mu.Unlock()
		_ = kasa.WriteFrame(conn, raw) //nolint:errcheck // test helper
		return
	}
	s.mu.Unlock()

	var req stripRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}

	reply := s.apply(req)
	body, err := json.Marshal(reply)
	if err != nil {
		s.t.Errorf("kasatest: encoding reply: %v", err)
		return
	}
	_ = kasa.WriteFrame(conn, body) //nolint:errcheck // client may have gone away
}

func (s *Strip) apply(req stripRequest) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	system := map[string]any{}

	if req.System.SetRelayState != nil {
		s.relayReqs++
		system["set_relay_state"] = s.setRelay(req)
	}

	if req.System.GetSysinfo != nil {
		s.sysinfoReqs++
		children := make([]kasa.Child, len(s.children))
		copy(children, s.children)
		system["get_sysinfo"] = kasa.SysInfo{
			Alias:    s.alias,
			DeviceID: DeviceID,
			Model:    "HS300(US)",
			Children: children,
		}
	}

	return map[string]any{"system": system}
}

func (s *Strip) setRelay(req stripRequest) map[string]any {
	if req.Context == nil || len(req.Context.ChildIDs) != 1 {
		return map[string]any{"err_code": -1, "err_msg": "missing child_ids"}
	}

	want := req.Context.ChildIDs[0]
	for i := range s.children {
		if DeviceID+s.children[i].ID == want {
			s.children[i].State = req.System.SetRelayState.State
			return map[string]any{"err_code": 0}
		}
	}
	return map[string]any{"err_code": -14, "err_msg": "entry not exist"}
}

func boolToState(on bool) int {
	if on {
		return 1
	}
	return 0
}
