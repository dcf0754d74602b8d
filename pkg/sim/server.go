package sim

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/transport"
)

// ServerConfig configures a simulator server.
type ServerConfig struct {
	// Address is the TCP listen address (default ":8614").
	Address string

	// TLS enables TLS when set; nil serves plain TCP.
	TLS *transport.TLSConfig

	// MaxMessageSize caps inbound frames (default 1 MiB).
	MaxMessageSize uint32

	// Logger receives transport and wire events.
	Logger log.Logger
}

// Server serves an instrument over the wire protocol. Each request is
// handled on its own goroutine: polls block until data arrives and
// must not stall a connection's read loop.
type Server struct {
	inst    *Instrument
	handler *Handler
	ts      *transport.Server
	logger  log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server for the instrument.
func NewServer(inst *Instrument, config ServerConfig) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	s := &Server{
		inst:    inst,
		handler: NewHandler(inst, config.Logger),
		logger:  logger,
	}
	ts, err := transport.NewServer(transport.ServerConfig{
		TLSConfig:      config.TLS,
		Address:        config.Address,
		MaxMessageSize: config.MaxMessageSize,
		Logger:         config.Logger,
		OnMessage:      s.onMessage,
		OnError:        s.onError,
	})
	if err != nil {
		return nil, err
	}
	s.ts = ts
	return s, nil
}

// Start begins listening. It returns once the listener is up.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.ts.Start(s.ctx); err != nil {
		s.cancel()
		return err
	}
	return nil
}

// Stop closes the listener and all connections, then waits for
// in-flight requests to finish.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.ts.Stop()
	s.wg.Wait()
	return err
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	return s.ts.Addr()
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	return s.ts.ConnectionCount()
}

// Instrument returns the served instrument.
func (s *Server) Instrument() *Instrument {
	return s.inst
}

func (s *Server) onMessage(conn *transport.ServerConn, data []byte) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		resp, err := s.handler.Handle(s.ctx, conn.ConnID(), data)
		if err != nil {
			s.logError(conn, err)
			return
		}
		if err := conn.Send(resp); err != nil {
			s.logError(conn, fmt.Errorf("sending response: %w", err))
		}
	}()
}

func (s *Server) onError(conn *transport.ServerConn, err error) {
	s.logError(conn, err)
}

func (s *Server) logError(conn *transport.ServerConn, err error) {
	ev := log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryError,
		LocalRole: log.RoleDevice,
		DeviceID:  s.inst.DeviceID(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
		},
	}
	if conn != nil {
		ev.ConnectionID = conn.ConnID()
		ev.RemoteAddr = conn.RemoteAddr().String()
	}
	s.logger.Log(ev)
}
