package kasa

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPort is the TCP port of the local control service.
const DefaultPort = 9999

const (
	defaultConnectTimeout = 5 * time.Second
	defaultIOTimeout      = 10 * time.Second
)

// Config configures a Client. Zero values select the defaults.
type Config struct {
	// Port is used when an address carries no port of its own.
	Port int

	// ConnectTimeout bounds the TCP dial.
	ConnectTimeout time.Duration

	// IOTimeout bounds one request/reply exchange after the dial.
	IOTimeout time.Duration
}

// Client sends commands to Kasa devices. It opens one connection per
// request and is safe for concurrent use.
type Client struct {
	cfg    Config
	dialer net.Dialer
}

// NewClient creates a Client, applying defaults for zero Config fields.
func NewClient(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	return &Client{cfg: cfg}
}

// SysInfo queries the device's system information, including the child
// outlets of a strip.
func (c *Client) SysInfo(ctx context.Context, address string) (*SysInfo, error) {
	var req request
	req.System.GetSysinfo = &struct{}{}

	var resp response
	if err := c.Do(ctx, address, req, &resp); err != nil {
		return nil, err
	}

	info := resp.System.GetSysinfo
	if info == nil {
		return nil, fmt.Errorf("%w: reply has no get_sysinfo", ErrMalformedResponse)
	}
	if info.ErrCode != 0 {
		return nil, fmt.Errorf("%w: get_sysinfo err_code %d %s", ErrDeviceRejected, info.ErrCode, info.ErrMsg)
	}
	return info, nil
}

// SetRelayState switches one outlet. childID must be the full child id
// (see ChildID); an empty childID switches the device's own relay.
func (c *Client) SetRelayState(ctx context.Context, address, childID string, on bool) error {
	var req request
	if childID != "" {
		req.Context = &requestContext{ChildIDs: []string{childID}}
	}
	req.System.SetRelayState = &relayState{}
	if on {
		req.System.SetRelayState.State = 1
	}

	var resp response
	if err := c.Do(ctx, address, req, &resp); err != nil {
		return err
	}

	reply := resp.System.SetRelayState
	if reply == nil {
		return fmt.Errorf("%w: reply has no set_relay_state", ErrMalformedResponse)
	}
	if reply.ErrCode != 0 {
		return fmt.Errorf("%w: set_relay_state err_code %d %s", ErrDeviceRejected, reply.ErrCode, reply.ErrMsg)
	}
	return nil
}

// Do sends an arbitrary command and decodes the reply into reply.
//
// Parameters:
//   - ctx: Cancellation and deadline for the whole exchange
//   - address: Host or host:port of the device
//   - command: Value encoded as the JSON request
//   - reply: Pointer the JSON reply is decoded into
//
// Returns:
//   - error: wrapping ErrConnectionFailed, ErrEmptyResponse or ErrMalformedResponse
func (c *Client) Do(ctx context.Context, address string, command, reply any) error {
	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("kasa: encoding command: %w", err)
	}

	raw, err := c.roundTrip(ctx, address, payload)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, reply); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, address string, payload []byte) ([]byte, error) {
	target := c.hostPort(address)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, target, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.cfg.IOTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", ErrConnectionFailed, err)
	}

	// Cancellation without a deadline still unblocks the read.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now()) //nolint:errcheck // conn may already be closed
	})
	defer stop()

	if err := WriteFrame(conn, payload); err != nil {
		return nil, err
	}

	raw, err := ReadFrame(conn)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", err, ctxErr)
		}
		return nil, err
	}
	return raw, nil
}

// contextError reports why ctx ended, including a deadline that has passed
// but whose timer has not fired yet. The socket deadline and the context
// deadline are the same instant, so either may be observed first.
func contextError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}

// hostPort appends the configured port unless address already has one.
func (c *Client) hostPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(c.cfg.Port))
}
