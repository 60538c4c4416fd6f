package kasa_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nerrad567/stripgate/internal/kasa"
	"github.com/nerrad567/stripgate/internal/kasa/kasatest"
)

func newClient() *kasa.Client {
	return kasa.NewClient(kasa.Config{ConnectTimeout: time.Second, IOTimeout: 2 * time.Second})
}

func TestSysInfo(t *testing.T) {
	strip := kasatest.NewStrip(t, "Lamp", "Fan", "Heater")
	strip.SetState(1, true)

	info, err := newClient().SysInfo(context.Background(), strip.Addr())
	if err != nil {
		t.Fatalf("SysInfo() error = %v", err)
	}

	if info.DeviceID != kasatest.DeviceID {
		t.Errorf("DeviceID = %q, want %q", info.DeviceID, kasatest.DeviceID)
	}
	if len(info.Children) != 3 {
		t.Fatalf("len(Children) = %d, want 3", len(info.Children))
	}
	for i, want := range []string{"Lamp", "Fan", "Heater"} {
		if info.Children[i].Alias != want {
			t.Errorf("Children[%d].Alias = %q, want %q", i, info.Children[i].Alias, want)
		}
	}
	if info.Children[0].On() || !info.Children[1].On() {
		t.Errorf("child states = %v/%v, want off/on", info.Children[0].On(), info.Children[1].On())
	}
}

func TestSetRelayState_PrefixesChildID(t *testing.T) {
	strip := kasatest.NewStrip(t, "Lamp", "Fan")
	client := newClient()
	ctx := context.Background()

	info, err := client.SysInfo(ctx, strip.Addr())
	if err != nil {
		t.Fatalf("SysInfo() error = %v", err)
	}

	id := kasa.ChildID(info.DeviceID, info.Children[1].ID)
	if err := client.SetRelayState(ctx, strip.Addr(), id, true); err != nil {
		t.Fatalf("SetRelayState(on) error = %v", err)
	}
	if got := strip.States(); got[0] || !got[1] {
		t.Errorf("States() = %v, want [false true]", got)
	}

	if err := client.SetRelayState(ctx, strip.Addr(), id, false); err != nil {
		t.Fatalf("SetRelayState(off) error = %v", err)
	}
	if strip.States()[1] {
		t.Error("outlet 2 still on after SetRelayState(off)")
	}
}

func TestSetRelayState_UnprefixedIDRejected(t *testing.T) {
	strip := kasatest.NewStrip(t, "Lamp")

	err := newClient().SetRelayState(context.Background(), strip.Addr(), "00", true)
	if !errors.Is(err, kasa.ErrDeviceRejected) {
		t.Errorf("SetRelayState() error = %v, want ErrDeviceRejected", err)
	}
}

func TestSysInfo_EmptyResponse(t *testing.T) {
	strip := kasatest.NewStrip(t, "Lamp")
	strip.DropNext(1)

	_, err := newClient().SysInfo(context.Background(), strip.Addr())
	if !errors.Is(err, kasa.ErrEmptyResponse) {
		t.Fatalf("SysInfo() error = %v, want ErrEmptyResponse", err)
	}

	// The strip recovers on the next request.
	if _, err := newClient().SysInfo(context.Background(), strip.Addr()); err != nil {
		t.Errorf("SysInfo() after drop error = %v", err)
	}
}

func TestSysInfo_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "garbage"},
		{"missing sysinfo", `{"system":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strip := kasatest.NewStrip(t, "Lamp")
			strip.ReplyRaw([]byte(tt.raw))

			_, err := newClient().SysInfo(context.Background(), strip.Addr())
			if !errors.Is(err, kasa.ErrMalformedResponse) {
				t.Errorf("SysInfo() error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestSysInfo_ErrCode(t *testing.T) {
	strip := kasatest.NewStrip(t, "Lamp")
	strip.ReplyRaw([]byte(`{"system":{"get_sysinfo":{"err_code":-1,"err_msg":"module not support"}}}`))

	_, err := newClient().SysInfo(context.Background(), strip.Addr())
	if !errors.Is(err, kasa.ErrDeviceRejected) {
		t.Errorf("SysInfo() error = %v, want ErrDeviceRejected", err)
	}
}

func TestSysInfo_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = newClient().SysInfo(context.Background(), addr)
	if !errors.Is(err, kasa.ErrConnectionFailed) {
		t.Errorf("SysInfo() error = %v, want ErrConnectionFailed", err)
	}
}

func TestSysInfo_HungDeviceHonoursContext(t *testing.T) {
	// Accepts connections but never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = newClient().SysInfo(ctx, ln.Addr().String())
	if !errors.Is(err, kasa.ErrConnectionFailed) {
		t.Errorf("SysInfo() error = %v, want ErrConnectionFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SysInfo() error = %v, want context.DeadlineExceeded in chain", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("SysInfo() took %v, want it bounded by the context", elapsed)
	}
}
