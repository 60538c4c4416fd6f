package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/stripgate/internal/audit"
	"github.com/nerrad567/stripgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/stripgate/internal/power"
)

// jsonPublisher is the part of mqtt.Client the adapters publish through.
type jsonPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// commandExecutor is the part of power.Controller that MQTT commands drive.
type commandExecutor interface {
	Execute(ctx context.Context, cmd power.Command) (power.ActionResult, error)
}

// switchWriter is the part of influxdb.Client used for switch history.
type switchWriter interface {
	WriteOutletSwitch(address string, outlet int, alias string, on bool, at time.Time)
}

// commandLogger is the logging surface of mqttCommandHandler.
type commandLogger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// mqttStatePublisher publishes retained outlet state after every successful
// switch, whatever interface the command came from.
type mqttStatePublisher struct {
	client jsonPublisher
}

// OutletChanged implements power.Observer.
func (p *mqttStatePublisher) OutletChanged(_ context.Context, ev power.Event) error {
	msg := mqtt.OutletStateMessage{
		Address:   ev.Command.Address,
		Outlet:    ev.Command.Outlet,
		Alias:     ev.Result.Alias,
		State:     string(ev.Result.State),
		Timestamp: ev.At.UTC(),
	}
	topic := mqtt.Topics{}.OutletState(ev.Command.Address, ev.Command.Outlet)
	if err := p.client.PublishJSON(topic, msg, true); err != nil {
		return fmt.Errorf("publishing outlet state: %w", err)
	}
	return nil
}

// influxSwitchWriter records each successful switch as a time-series point.
type influxSwitchWriter struct {
	client switchWriter
}

// OutletChanged implements power.Observer.
func (w *influxSwitchWriter) OutletChanged(_ context.Context, ev power.Event) error {
	w.client.WriteOutletSwitch(ev.Command.Address, ev.Command.Outlet, ev.Result.Alias,
		ev.Result.State == power.StateOn, ev.At)
	return nil
}

// errCommandsClosed is returned by mqttCommandHandler.Handle after Close.
var errCommandsClosed = errors.New("mqtt command handler closed")

// mqttCommandHandler turns messages on stripgate/command/{address}/{outlet}
// into controller commands and answers on the matching ack topic.
type mqttCommandHandler struct {
	ctx        context.Context
	controller commandExecutor
	client     jsonPublisher
	log        commandLogger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Handle is the mqtt.MessageHandler. Commands run on their own goroutine
// because a switch with retries can take seconds and paho delivers
// messages from a single goroutine.
func (h *mqttCommandHandler) Handle(topic string, payload []byte) error {
	address, outlet, err := mqtt.ParseOutletTopic(topic)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		h.log.Warn("MQTT outlet command dropped during shutdown", "address", address, "outlet", outlet)
		return errCommandsClosed
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.execute(address, outlet, payload)
	}()
	return nil
}

// Close stops accepting commands and blocks until in-flight ones have
// finished. Messages delivered after Close are dropped.
func (h *mqttCommandHandler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *mqttCommandHandler) execute(address string, outlet int, payload []byte) {
	ack := mqtt.OutletAckMessage{}

	msg, err := mqtt.ParseCommand(payload)
	ack.RequestID = msg.RequestID
	if err != nil {
		h.log.Warn("invalid MQTT outlet command", "address", address, "outlet", outlet, "error", err)
		ack.Error = err.Error()
		h.publishAck(address, outlet, ack)
		return
	}

	// The command runs to completion even if shutdown begins meanwhile.
	result, err := h.controller.Execute(context.WithoutCancel(h.ctx), power.Command{
		Address: address,
		Outlet:  outlet,
		State:   power.State(msg.State),
		Source:  audit.SourceMQTT,
	})
	if err != nil {
		ack.State = msg.State
		ack.Error = err.Error()
	} else {
		ack.Success = true
		ack.State = string(result.State)
		ack.Alias = result.Alias
	}
	h.publishAck(address, outlet, ack)
}

func (h *mqttCommandHandler) publishAck(address string, outlet int, ack mqtt.OutletAckMessage) {
	ack.Timestamp = time.Now().UTC()
	if err := h.client.PublishJSON(mqtt.Topics{}.OutletAck(address, outlet), ack, false); err != nil {
		h.log.Error("publishing MQTT ack failed", "address", address, "outlet", outlet, "error", err)
	}
}
