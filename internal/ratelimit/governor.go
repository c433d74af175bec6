// Package ratelimit throttles both new-connection acceptance and
// per-connection byte throughput for the accept loop, adapted from a
// write-side token-bucket wrapper.
package ratelimit

import (
	"context"
	"net"
	"time"

	"golang.org/x/time/rate"
)

const defaultBurstMultiplier = 1

// AcceptGovernor limits how fast new connections may be accepted,
// independent of any per-connection byte throttling.
type AcceptGovernor struct {
	lm *rate.Limiter
}

// NewAcceptGovernor returns a governor allowing up to perSecond accept
// calls per second, bursting up to burst. perSecond<=0 disables limiting.
func NewAcceptGovernor(perSecond float64, burst int) *AcceptGovernor {
	if perSecond <= 0 {
		return &AcceptGovernor{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &AcceptGovernor{lm: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until the next accept is permitted, or ctx is done.
func (g *AcceptGovernor) Wait(ctx context.Context) error {
	if g == nil || g.lm == nil {
		return nil
	}
	return g.lm.Wait(ctx)
}

// Parent mints ThrottleConns sharing a single token bucket, so the
// aggregate throughput of every connection spawned from it is capped
// at bytesPerSecond.
type Parent struct {
	burst int
	lm    *rate.Limiter
}

// NewParent returns a Parent enforcing bytesPerSecond aggregate
// throughput across every connection it wraps.
func NewParent(bytesPerSecond int64, burstMult int) *Parent {
	if burstMult <= 0 {
		burstMult = defaultBurstMultiplier
	}
	burst := int(bytesPerSecond) * burstMult
	return &Parent{
		burst: burst,
		lm:    rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

// ThrottleConn is a net.Conn whose Write calls are paced against a
// shared token bucket.
type ThrottleConn struct {
	net.Conn
	burst int
	lm    *rate.Limiter
	to    time.Duration
	ctx   context.Context
	cncl  func()
}

// Wrap returns c paced against p's shared bucket.
func (p *Parent) Wrap(c net.Conn) *ThrottleConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &ThrottleConn{Conn: c, burst: p.burst, lm: p.lm, cncl: cancel, ctx: ctx}
}

// NewWriteThrottler wraps c with its own independent token bucket.
func NewWriteThrottler(bytesPerSecond int64, burstMult int, c net.Conn) *ThrottleConn {
	if burstMult <= 0 {
		burstMult = defaultBurstMultiplier
	}
	burst := int(bytesPerSecond) * burstMult
	return &ThrottleConn{Conn: c, burst: burst, lm: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// Close cancels any in-flight throttled write wait and closes the conn.
func (w *ThrottleConn) Close() error {
	if w.cncl != nil {
		w.cncl()
	}
	return w.Conn.Close()
}

// SetWriteTimeout bounds how long a single Write call may wait on the
// token bucket before giving up.
func (w *ThrottleConn) SetWriteTimeout(to time.Duration) {
	w.to = to
}

// Write sends b in burst-sized chunks, waiting on the shared token
// bucket between chunks so the connection never exceeds its share of
// the configured rate.
func (w *ThrottleConn) Write(b []byte) (n int, err error) {
	var r int
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if w.to > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, w.to)
		defer cancel()
	}
	for n < len(b) {
		sz := len(b) - n
		if w.burst > 0 && sz > w.burst {
			sz = w.burst
		}
		if r, err = w.Conn.Write(b[n : n+sz]); err != nil {
			return
		}
		if w.lm != nil {
			if err = w.lm.WaitN(ctx, r); err != nil {
				return
			}
		}
		n += r
	}
	return
}
