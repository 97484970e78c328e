// Package eventloop multiplexes connections from any number of listeners
// into a single channel, so that one goroutine can dispatch every
// accepted connection without locking: a mapping from readiness sources
// to callbacks, realized with channels instead of a raw fd-readiness
// wait.
package eventloop

import (
	"net"

	"KoordeDHT/internal/logger"
)

// Source names the listener a connection arrived on.
type Source string

// Conn pairs an accepted connection with the listener it arrived on.
type Conn struct {
	Source Source
	Conn   net.Conn
}

// Loop fans in accepted connections from multiple listeners. Callers
// range over Events() from a single goroutine and dispatch by Source;
// that goroutine is the only place finger-table, image-store, and
// image-client state is ever mutated.
type Loop struct {
	lgr    logger.Logger
	events chan Conn
	done   chan struct{}
}

// New creates a Loop with the given event channel buffer.
func New(lgr logger.Logger, buffer int) *Loop {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Loop{
		lgr:    lgr,
		events: make(chan Conn, buffer),
		done:   make(chan struct{}),
	}
}

// Watch spawns an accept loop for ln tagged with source, forwarding every
// accepted connection onto Events() until Stop is called or the listener
// itself is closed (e.g. to swap in a fresh one after a REID).
func (l *Loop) Watch(source Source, ln net.Listener) {
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-l.done:
					return
				default:
				}
				l.lgr.Warn("accept failed", logger.F("source", string(source)), logger.F("err", err))
				return
			}
			select {
			case l.events <- Conn{Source: source, Conn: conn}:
			case <-l.done:
				conn.Close()
				return
			}
		}
	}()
}

// Events returns the channel every watched listener feeds into.
func (l *Loop) Events() <-chan Conn { return l.events }

// Stop signals every Watch goroutine to exit on its next iteration.
func (l *Loop) Stop() { close(l.done) }
