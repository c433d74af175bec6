// Package proxy wires the TDS framer, SQL shallow parser, RPC codec,
// and policy engine into a live connection pipe: client bytes are
// reassembled, inspected, and possibly rewritten in flight; server
// bytes pass through untouched.
package proxy

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/sqlumai/tdsguard/internal/config"
	"github.com/sqlumai/tdsguard/internal/decisionlog"
	"github.com/sqlumai/tdsguard/internal/logx"
	"github.com/sqlumai/tdsguard/internal/metrics"
	"github.com/sqlumai/tdsguard/internal/policy"
	"github.com/sqlumai/tdsguard/internal/rpccodec"
	"github.com/sqlumai/tdsguard/internal/tdsframe"
)

const copyChunkSize = 64 * 1024

// Deps bundles the shared, long-lived collaborators every connection
// pipe needs; one Deps is built at startup and handed to every Pipe.
type Deps struct {
	Cfg      config.Config
	Rules    *policy.Watcher
	Counters *metrics.Counters
	Sink     *decisionlog.Sink
	Log      *logx.Logger
	// Types resolves RPC parameter types for the optional from-scratch
	// repack builder; nil when RPC_PARAM_TYPES_PATH is unset.
	Types rpccodec.TypeResolver
}

// Pipe owns one accepted client connection and its dialed upstream
// connection, pumping bytes in both directions concurrently.
type Pipe struct {
	client net.Conn
	server net.Conn
	deps   Deps
	spid   uint16
}

// NewPipe dials upstream and returns a Pipe ready to Run. The caller
// retains ownership of client and must close it if dialing fails.
func NewPipe(ctx context.Context, client net.Conn, upstreamAddr string, deps Deps) (*Pipe, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	server, err := d.DialContext(ctx, "tcp", upstreamAddr)
	if err != nil {
		return nil, err
	}
	return &Pipe{client: client, server: server, deps: deps}, nil
}

// Run pumps both directions until either side closes or errors, then
// closes both connections. It blocks until both pumps have returned.
func (p *Pipe) Run() {
	defer p.client.Close()
	defer p.server.Close()

	done := make(chan struct{}, 2)

	go func() {
		p.clientToServer()
		p.server.Close() // EOF-driven cancellation of the peer pump
		done <- struct{}{}
	}()
	go func() {
		passthrough(p.server, p.client, p.deps.Counters, metrics.KeyServerBytesRelayed)
		p.client.Close()
		done <- struct{}{}
	}()

	<-done
	<-done
}

// clientToServer reassembles client bytes into TDS packets, runs each
// recognized SQL Batch or RPC Request through the rewrite controller,
// and forwards everything else (and everything unparsed) untouched.
func (p *Pipe) clientToServer() {
	ctrl := newController(p.deps, p.spidRef())
	buf := make([]byte, copyChunkSize)
	var leftover []byte

	for {
		n, err := p.client.Read(buf)
		if n > 0 {
			leftover = append(leftover, buf[:n]...)
			out, consumed := ctrl.process(leftover)
			leftover = leftover[consumed:]
			if len(out) > 0 {
				if _, werr := p.server.Write(out); werr != nil {
					return
				}
			}
			if len(leftover) > tdsframe.MaxReassemblyBytes {
				// Reassembly budget exceeded: drop the connection rather
				// than grow the buffer without bound or forward a partial
				// message.
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Pipe) spidRef() *uint16 {
	return &p.spid
}

func passthrough(dst io.Writer, src io.Reader, counters *metrics.Counters, key string) {
	buf := make([]byte, copyChunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
			if counters != nil {
				counters.Inc(key, int64(n))
			}
		}
		if err != nil {
			return
		}
	}
}
