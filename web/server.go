// Package web serves the movement protocol to browsers, the display and other websocket clients.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"github.com/nanoalchemist/movement/services/movement"
)

// RunningText is the body of a plain GET on the root path.
const RunningText = "Server Running"

// Server upgrades websocket requests into movement peers.
type Server struct {
	cfg      Config
	svc      *movement.Service
	logger   golog.Logger
	mux      *goji.Mux
	upgrader websocket.Upgrader

	mu         sync.Mutex
	peers      map[string]*wsPeer
	httpServer *http.Server
	listener   net.Listener

	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewServer returns a server routing websocket traffic to svc. It does not listen until Start.
func NewServer(cfg Config, svc *movement.Service, logger golog.Logger) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		logger:    logger,
		peers:     map[string]*wsPeer{},
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}

	corsHandler := cors.AllowAll()
	if len(cfg.CORSOrigins) > 0 {
		corsHandler = cors.New(cors.Options{AllowedOrigins: cfg.CORSOrigins})
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return r.Header.Get("Origin") == "" || corsHandler.OriginAllowed(r)
		},
	}

	s.mux = goji.NewMux()
	s.mux.Use(corsHandler.Handler)
	s.mux.HandleFunc(pat.Get("/"), s.handleRoot)
	s.mux.HandleFunc(pat.Get("/ws"), s.handleWebsocket)
	return s
}

// Handler returns the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listening on %q", s.cfg.Listen)
	}
	httpServer := &http.Server{
		Addr:              listener.Addr().String(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           s.mux,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("serving failed", "error", err)
		}
	}, s.activeBackgroundWorkers.Done)
	s.logger.Infow("serving", "url", fmt.Sprintf("http://%s", listener.Addr().String()))
	return nil
}

// Addr is the bound listen address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Listen
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebsocket(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(RunningText)); err != nil {
		s.logger.Debugw("writing response failed", "error", err)
	}
}

func roleOf(r *http.Request) string {
	if r.URL.Query().Get("role") == movement.RoleDisplay {
		return movement.RoleDisplay
	}
	return movement.RoleOperator
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}

	p := newWSPeer(uuid.NewString(), roleOf(r), conn, s.logger)
	s.mu.Lock()
	s.peers[p.id] = p
	s.mu.Unlock()

	s.svc.Connected(p)
	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(p.writePump, s.activeBackgroundWorkers.Done)

	p.readPump(s.cancelCtx, s.svc.Dispatch)

	s.mu.Lock()
	delete(s.peers, p.id)
	s.mu.Unlock()
	s.svc.Disconnected(p.id)
}

// Close stops accepting connections, flushes and hangs up every peer and waits for them.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	peers := make([]*wsPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		err = multierr.Combine(err, httpServer.Shutdown(ctx))
	}
	for _, p := range peers {
		p.close()
	}
	s.cancel()
	s.activeBackgroundWorkers.Wait()
	return err
}
