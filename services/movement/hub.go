package movement

import (
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"github.com/nanoalchemist/movement/components/motor/gpiostepper"
)

// DefaultQueueSize is how many undelivered records the hub holds before it starts dropping.
const DefaultQueueSize = 64

// Peer roles.
const (
	RoleOperator = "operator"
	RoleDisplay  = "display"
)

// A Peer is one connected client. Send must not block; it reports whether msg was accepted.
type Peer interface {
	ID() string
	Role() string
	Send(msg interface{}) bool
}

// Notification is the outbound record every status and lifecycle text travels in.
type Notification struct {
	Method string              `json:"Method"`
	ID     string              `json:"id"`
	TS     time.Time           `json:"ts"`
	Status *gpiostepper.Status `json:"status,omitempty"`
}

// NewNotification stamps text with a fresh id and the current time.
func NewNotification(text string) Notification {
	return Notification{Method: text, ID: uuid.NewString(), TS: time.Now()}
}

type envelope struct {
	msg interface{}
	to  func(Peer) bool
}

// Hub fans records out to peers through a bounded queue. Publishing never blocks; when the queue
// is full the record is dropped and counted.
type Hub struct {
	queue   chan envelope
	closing chan struct{}
	logger  golog.Logger

	mu    sync.RWMutex
	peers map[string]Peer

	dropped                 atomic.Int64
	closed                  atomic.Bool
	closeOnce               sync.Once
	activeBackgroundWorkers sync.WaitGroup
}

// NewHub starts a hub whose queue holds size records. size <= 0 means DefaultQueueSize.
func NewHub(size int, logger golog.Logger) *Hub {
	if size <= 0 {
		size = DefaultQueueSize
	}
	h := &Hub{
		queue:   make(chan envelope, size),
		closing: make(chan struct{}),
		logger:  logger,
		peers:   map[string]Peer{},
	}
	h.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(h.deliverLoop, h.activeBackgroundWorkers.Done)
	return h
}

// Register adds a peer. A peer registered twice under one id replaces the first.
func (h *Hub) Register(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.ID()] = p
	h.logger.Debugw("peer registered", "peer", p.ID(), "role", p.Role())
}

// Unregister removes the peer with the given id, if any.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
}

// Peers returns how many peers are registered.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Dropped returns how many records were discarded because the queue was full or the hub closed.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Publish sends text to every peer.
func (h *Hub) Publish(text string) {
	h.enqueue(NewNotification(text), func(Peer) bool { return true })
}

// NotifyPeer sends text to the peer with the given id only.
func (h *Hub) NotifyPeer(id, text string) {
	h.SendTo(id, NewNotification(text))
}

// NotifyOthers sends text to every peer except the one with the given id.
func (h *Hub) NotifyOthers(id, text string) {
	h.enqueue(NewNotification(text), func(p Peer) bool { return p.ID() != id })
}

// SendTo queues an arbitrary record for the peer with the given id.
func (h *Hub) SendTo(id string, msg interface{}) {
	h.enqueue(msg, func(p Peer) bool { return p.ID() == id })
}

// SendToRole queues an arbitrary record for every peer of the given role. With no such peer it is
// silently discarded.
func (h *Hub) SendToRole(role string, msg interface{}) {
	h.enqueue(msg, func(p Peer) bool { return p.Role() == role })
}

func (h *Hub) enqueue(msg interface{}, to func(Peer) bool) {
	if h.closed.Load() {
		h.dropped.Inc()
		return
	}
	select {
	case h.queue <- envelope{msg: msg, to: to}:
	default:
		n := h.dropped.Inc()
		h.logger.Debugw("notification queue full, dropping", "dropped", n)
	}
}

func (h *Hub) deliverLoop() {
	for {
		select {
		case env := <-h.queue:
			h.deliver(env)
		case <-h.closing:
			for {
				select {
				case env := <-h.queue:
					h.deliver(env)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	targets := make([]Peer, 0, len(h.peers))
	for _, p := range h.peers {
		if env.to(p) {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if !p.Send(env.msg) {
			h.dropped.Inc()
			h.logger.Debugw("peer not keeping up, dropping", "peer", p.ID())
		}
	}
}

// Close delivers whatever is already queued and stops the hub. Later records are dropped.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.closing)
	})
	h.activeBackgroundWorkers.Wait()
}
