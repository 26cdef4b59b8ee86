package movement

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

const (
	streamSendBuffer = 64
	maxLineBytes     = 16 << 20 // a base64 slice archive fits on one line
)

// streamPeer writes one JSON record per line.
type streamPeer struct {
	id     string
	role   string
	sendCh chan interface{}
	done   chan struct{}
}

func (p *streamPeer) ID() string   { return p.id }
func (p *streamPeer) Role() string { return p.role }

func (p *streamPeer) Send(msg interface{}) bool {
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

// ServeStream runs the protocol over a byte stream carrying newline-delimited JSON, such as a
// serial line, until the stream ends or ctx is done. Closing rw is up to the caller; it is the
// only way to unblock a pending read.
func (s *Service) ServeStream(ctx context.Context, rw io.ReadWriter, role string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &streamPeer{
		id:     uuid.NewString(),
		role:   role,
		sendCh: make(chan interface{}, streamSendBuffer),
		done:   make(chan struct{}),
	}
	s.Connected(p)
	defer s.Disconnected(p.id)

	var writers sync.WaitGroup
	writers.Add(1)
	utils.ManagedGo(func() {
		enc := json.NewEncoder(rw)
		write := func(msg interface{}) bool {
			if err := enc.Encode(msg); err != nil {
				s.logger.Debugw("stream write failed", "peer", p.id, "error", err)
				return false
			}
			return true
		}
		for {
			select {
			case <-ctx.Done():
				// whatever was queued before the stream ended still goes out
				for {
					select {
					case msg := <-p.sendCh:
						if !write(msg) {
							return
						}
					default:
						return
					}
				}
			case msg := <-p.sendCh:
				if !write(msg) {
					return
				}
			}
		}
	}, writers.Done)
	defer func() {
		close(p.done)
		cancel()
		writers.Wait()
	}()

	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s.Dispatch(ctx, p.id, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "reading stream")
	}
	return nil
}
