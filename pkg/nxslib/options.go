package nxslib

import (
	"log/slog"
	"time"

	"github.com/railab/nxslib-go/internal/proto"
)

const (
	defaultAckTimeout           = time.Second
	defaultHandshakeRetries     = 5
	defaultStreamDequeueTimeout = time.Second
)

// Option configures a Handler at construction time (spec §6).
type Option func(*Handler)

// WithAckTimeout overrides the control-path dequeue timeout used for every
// command/ACK round trip, including the connect handshake. Default 1s.
func WithAckTimeout(d time.Duration) Option {
	return func(h *Handler) { h.ackTimeout = d }
}

// WithHandshakeRetries overrides the connect retry budget. Default 5.
func WithHandshakeRetries(n int) Option {
	return func(h *Handler) { h.handshakeRetries = n }
}

// WithStreamDequeueTimeout overrides how long the dispatcher waits for the
// next STREAM frame before looping to check for shutdown. Default 1s.
func WithStreamDequeueTimeout(d time.Duration) Option {
	return func(h *Handler) { h.dequeueTimeout = d }
}

// WithLogger overrides the default package logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithUserTypes registers decoders for USER dtypes in [20,31], mirroring the
// original source's DsfmtItem/dsfmt_get table (spec §4.2).
func WithUserTypes(types map[uint8]proto.UserType) Option {
	return func(h *Handler) {
		for dtype, ut := range types {
			h.userTypes[dtype] = ut
		}
	}
}
