// Package movement maps inbound command messages onto the axis controller and relays state
// changes back to every connected peer.
package movement

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/nanoalchemist/movement/components/motor/gpiostepper"
)

// Lifecycle notices.
const (
	OnConnectionRequestReceived = "OnConnectionRequestReceived"
	OnConnectionClosed          = "OnConnectionClosed"
	OnMovementCanceled          = "OnMovementCanceled"
	StatusMethod                = "Status"
)

// Axis is the part of the controller the service drives.
type Axis interface {
	Configure(cfg gpiostepper.AxisConfig)
	AxisConfig() gpiostepper.AxisConfig
	Move(ctx context.Context, lengthMm, speed float64, dir gpiostepper.Direction) (gpiostepper.Outcome, error)
	MoveToHome(ctx context.Context, speed float64, dir gpiostepper.Direction) (gpiostepper.Outcome, error)
	Status() gpiostepper.Status
}

// Service handles messages from every transport.
type Service struct {
	axis   Axis
	hub    *Hub
	logger golog.Logger

	closeMu                 sync.Mutex
	closed                  bool
	activeBackgroundWorkers sync.WaitGroup
}

// NewService returns a service driving axis and replying through hub.
func NewService(axis Axis, hub *Hub, logger golog.Logger) *Service {
	return &Service{axis: axis, hub: hub, logger: logger}
}

// Hub returns the hub the service notifies through.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Connected registers a peer with the hub.
func (s *Service) Connected(p Peer) {
	s.hub.Register(p)
	s.logger.Infow("peer connected", "peer", p.ID(), "role", p.Role())
}

// Disconnected drops the peer and tells the remaining ones.
func (s *Service) Disconnected(id string) {
	s.hub.Unregister(id)
	s.hub.NotifyOthers(id, OnConnectionClosed)
	s.logger.Infow("peer disconnected", "peer", id)
}

// Dispatch decodes and handles data on its own goroutine so a long move does not hold up the
// sender's connection.
func (s *Service) Dispatch(ctx context.Context, peerID string, data []byte) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		s.logger.Debugw("service closed, dropping request", "peer", peerID)
		return
	}
	s.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer s.activeBackgroundWorkers.Done()
		s.HandleJSON(ctx, peerID, data)
	})
}

// HandleJSON decodes one JSON object and handles it.
func (s *Service) HandleJSON(ctx context.Context, peerID string, data []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		s.hub.NotifyPeer(peerID, OnConnectionRequestReceived)
		s.fail(peerID, errors.Wrap(err, "decoding message"))
		return
	}
	s.Handle(ctx, peerID, msg)
}

// Handle acknowledges msg to its sender and runs it. Failures and panics become a notification to
// the sender; nothing is returned.
func (s *Service) Handle(ctx context.Context, peerID string, msg map[string]interface{}) {
	if s.isClosed() {
		s.logger.Debugw("service closed, dropping request", "peer", peerID)
		return
	}
	s.hub.NotifyPeer(peerID, OnConnectionRequestReceived)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.fail(peerID, errors.Errorf("panic: %v", r))
		}
		s.logger.Debugw("request handled", "peer", peerID, "took", time.Since(start))
	}()

	if err := s.handle(ctx, peerID, msg); err != nil {
		s.fail(peerID, err)
	}
}

func (s *Service) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func (s *Service) fail(peerID string, err error) {
	s.logger.Warnw("request failed", "peer", peerID, "error", err)
	s.hub.NotifyPeer(peerID, fmt.Sprintf("Error:%v", err))
}

func (s *Service) handle(ctx context.Context, peerID string, msg map[string]interface{}) error {
	method, ok := methodOf(msg)
	if !ok {
		if !isLegacy(msg) {
			s.logger.Debugw("message without method ignored", "peer", peerID)
			return nil
		}
		return s.legacy(ctx, msg)
	}

	switch method {
	case MethodConfigure:
		var req configureRequest
		if err := decodeRequest(msg, &req); err != nil {
			return err
		}
		s.axis.Configure(req.apply(s.axis.AxisConfig()))
		return nil
	case MethodMove:
		var req moveRequest
		if err := decodeRequest(msg, &req); err != nil {
			return err
		}
		length, speed, dir := req.values()
		return s.report(s.axis.Move(ctx, length, speed, dir))
	case MethodMoveToHome:
		var req moveRequest
		if err := decodeRequest(msg, &req); err != nil {
			return err
		}
		_, speed, dir := req.values()
		return s.report(s.axis.MoveToHome(ctx, speed, dir))
	case MethodSendFile:
		var req sendFileRequest
		if err := decodeRequest(msg, &req); err != nil {
			return err
		}
		s.hub.SendToRole(RoleDisplay, map[string]interface{}{"method": displayLoadFile, "file": req.File})
		return nil
	case MethodStartPrint:
		s.hub.SendToRole(RoleDisplay, map[string]interface{}{"method": displayStartPrint})
		return nil
	case MethodStatus:
		status := s.axis.Status()
		n := NewNotification(StatusMethod)
		n.Status = &status
		s.hub.SendTo(peerID, n)
		return nil
	default:
		s.logger.Debugw("unknown method ignored", "peer", peerID, "method", method)
		return nil
	}
}

func (s *Service) legacy(ctx context.Context, msg map[string]interface{}) error {
	var req legacyRequest
	if err := decodeRequest(msg, &req); err != nil {
		return err
	}
	length, speed, dir := req.values()
	if _, home := msg["home"]; home {
		return s.report(s.axis.MoveToHome(ctx, speed, dir))
	}
	return s.report(s.axis.Move(ctx, length, speed, dir))
}

func (s *Service) report(outcome gpiostepper.Outcome, err error) error {
	if err != nil {
		return err
	}
	s.logger.Debugw("move finished", "outcome", outcome.String())
	return nil
}

// Close announces the shutdown, waits for in-flight requests until ctx is done and flushes the
// hub.
func (s *Service) Close(ctx context.Context) error {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()
	s.hub.Publish(OnMovementCanceled)

	done := make(chan struct{})
	utils.PanicCapturingGo(func() {
		s.activeBackgroundWorkers.Wait()
		close(done)
	})
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "requests still running")
	}
	s.hub.Close()
	return err
}
