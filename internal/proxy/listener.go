package proxy

import (
	"context"
	"crypto/tls"
	"net"
	"strings"

	"github.com/sqlumai/tdsguard/internal/logx"
	"github.com/sqlumai/tdsguard/internal/metrics"
	"github.com/sqlumai/tdsguard/internal/ratelimit"
)

// Server owns the proxy's listening socket and spawns one Pipe per
// accepted connection.
type Server struct {
	deps     Deps
	listener net.Listener
	governor *ratelimit.AcceptGovernor
}

// NewServer binds the configured listen address, terminating TLS
// itself when cfg.TLSTermination is set.
func NewServer(deps Deps, governor *ratelimit.AcceptGovernor) (*Server, error) {
	cfg := deps.Cfg
	var ln net.Listener
	var err error
	if cfg.TLSTermination {
		cert, cerr := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
		if cerr != nil {
			return nil, cerr
		}
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
		ln, err = tls.Listen("tcp", cfg.ListenAddr(), tlsCfg)
	} else {
		ln, err = net.Listen("tcp", cfg.ListenAddr())
	}
	if err != nil {
		return nil, err
	}
	return &Server{deps: deps, listener: ln, governor: governor}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve runs the accept loop until the listener is closed or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	var failCount int
	for {
		if err := s.governor.Wait(ctx); err != nil {
			return nil
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "closed") {
				return nil
			}
			failCount++
			if s.deps.Log != nil {
				s.deps.Log.Warn("accept failed", logx.KVErr(err))
			}
			if failCount > 3 {
				return err
			}
			continue
		}
		failCount = 0
		s.inc(metrics.KeyConnectionsAccepted, 1)
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	p, err := NewPipe(ctx, conn, s.deps.Cfg.UpstreamAddr(), s.deps)
	if err != nil {
		if s.deps.Log != nil {
			s.deps.Log.Error("failed to dial upstream", logx.KVErr(err))
		}
		s.inc(metrics.KeyConnectionsRejected, 1)
		conn.Close()
		return
	}
	p.Run()
}

func (s *Server) inc(key string, by int64) {
	if s.deps.Counters != nil {
		s.deps.Counters.Inc(key, by)
	}
}
