package web

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	"go.viam.com/utils"
)

const (
	sendBuffer      = 64
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	maxMessageBytes = 16 << 20
)

// wsPeer is one websocket client.
type wsPeer struct {
	id     string
	role   string
	conn   *websocket.Conn
	sendCh chan interface{}
	done   chan struct{}
	once   sync.Once
	logger golog.Logger
}

func newWSPeer(id, role string, conn *websocket.Conn, logger golog.Logger) *wsPeer {
	return &wsPeer{
		id:     id,
		role:   role,
		conn:   conn,
		sendCh: make(chan interface{}, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (p *wsPeer) ID() string   { return p.id }
func (p *wsPeer) Role() string { return p.role }

// Send queues msg unless the peer is closing or its buffer is full.
func (p *wsPeer) Send(msg interface{}) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.sendCh <- msg:
		return true
	default:
		return false
	}
}

// close asks the write pump to flush and hang up.
func (p *wsPeer) close() {
	p.once.Do(func() { close(p.done) })
}

func (p *wsPeer) readPump(ctx context.Context, handle func(ctx context.Context, peerID string, data []byte)) {
	defer p.close()

	p.conn.SetReadLimit(maxMessageBytes)
	utils.UncheckedError(p.conn.SetReadDeadline(time.Now().Add(pongWait)))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				p.logger.Debugw("websocket read failed", "peer", p.id, "error", err)
			}
			return
		}
		handle(ctx, p.id, data)
	}
}

func (p *wsPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		utils.UncheckedError(p.conn.Close())
	}()

	for {
		select {
		case msg := <-p.sendCh:
			if err := p.write(msg); err != nil {
				p.logger.Debugw("websocket write failed", "peer", p.id, "error", err)
				return
			}
		case <-ticker.C:
			utils.UncheckedError(p.conn.SetWriteDeadline(time.Now().Add(writeWait)))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			p.flush()
			utils.UncheckedError(p.conn.SetWriteDeadline(time.Now().Add(writeWait)))
			utils.UncheckedError(p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
			return
		}
	}
}

func (p *wsPeer) flush() {
	for {
		select {
		case msg := <-p.sendCh:
			if err := p.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *wsPeer) write(msg interface{}) error {
	utils.UncheckedError(p.conn.SetWriteDeadline(time.Now().Add(writeWait)))
	return p.conn.WriteJSON(msg)
}
