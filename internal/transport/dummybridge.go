package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/railab/nxslib-go/internal/logging"
)

// BackpressurePolicy controls what a DummyBridge does to a spy connection
// whose outbound buffer is full, adapted from the teacher's internal/hub/hub.go.
type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// spyClient is one observing TCP connection on a DummyBridge.
type spyClient struct {
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *spyClient) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// DummyBridge optionally exposes a Dummy device's wire protocol across a TCP
// listener so integration tests can drive the real byte-level protocol over a
// socket instead of the in-process queues. Multiple observing connections are
// fanned out with a drop/kick backpressure policy; dropping frames to a slow
// spy is acceptable here because the bridge is a test/dev harness, never the
// primary NxScope session (spec §1 scope note).
type DummyBridge struct {
	dev    *Dummy
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*spyClient]net.Conn
	policy  BackpressurePolicy
	bufSize int

	listener net.Listener
	wg       sync.WaitGroup
}

// NewDummyBridge wraps dev for network exposure. policy controls the
// behavior when a spy's outbound buffer is full.
func NewDummyBridge(dev *Dummy, policy BackpressurePolicy) *DummyBridge {
	return &DummyBridge{
		dev:     dev,
		logger:  logging.L(),
		clients: make(map[*spyClient]net.Conn),
		policy:  policy,
		bufSize: 256,
	}
}

// Serve binds addr and accepts spy connections until ctx is cancelled. It is
// the combination of Listen followed by Run, for callers that don't need the
// bound address before connections start arriving.
func (b *DummyBridge) Serve(ctx context.Context, addr string) error {
	if err := b.Listen(addr); err != nil {
		return err
	}
	return b.Run(ctx)
}

// Listen binds the TCP address without accepting connections yet, so a
// caller can read back Addr() (useful for addr ":0" dynamic ports) before
// calling Run.
func (b *DummyBridge) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dummybridge: listen: %w", err)
	}
	b.listener = ln
	b.logger.Info("dummybridge_listen", "addr", ln.Addr().String())
	return nil
}

// Run accepts spy connections on the listener established by Listen until
// ctx is cancelled.
func (b *DummyBridge) Run(ctx context.Context) error {
	ln := b.listener
	go func() { <-ctx.Done(); _ = ln.Close() }()

	b.wg.Add(1)
	go b.pump(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("dummybridge: accept: %w", err)
			}
		}
		b.acceptConn(ctx, conn)
	}
}

// Addr returns the bound listener address, or "" before Listen succeeds.
func (b *DummyBridge) Addr() string {
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

func (b *DummyBridge) acceptConn(ctx context.Context, conn net.Conn) {
	cl := &spyClient{out: make(chan []byte, b.bufSize), closed: make(chan struct{})}
	b.mu.Lock()
	b.clients[cl] = conn
	b.mu.Unlock()
	b.logger.Info("dummybridge_client_connected", "remote", conn.RemoteAddr().String())

	b.wg.Add(2)
	go b.readLoop(ctx, conn, cl)
	go b.writeLoop(ctx, conn, cl)
}

func (b *DummyBridge) readLoop(ctx context.Context, conn net.Conn, cl *spyClient) {
	defer b.wg.Done()
	defer b.removeClient(cl, conn)
	buf := make([]byte, 4096)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			_, _ = b.dev.Write(buf[:n])
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-ctx.Done():
					return
				case <-cl.closed:
					return
				default:
					continue
				}
			}
			return
		}
	}
}

func (b *DummyBridge) writeLoop(ctx context.Context, conn net.Conn, cl *spyClient) {
	defer b.wg.Done()
	defer b.removeClient(cl, conn)
	for {
		select {
		case data := <-cl.out:
			if _, err := conn.Write(data); err != nil {
				return
			}
		case <-cl.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pump forwards every frame emitted by the underlying Dummy device to all
// connected spy clients, honoring the configured backpressure policy.
func (b *DummyBridge) pump(ctx context.Context) {
	defer b.wg.Done()
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := b.dev.Read(buf)
		if err != nil || n == 0 {
			continue
		}
		frame := append([]byte(nil), buf[:n]...)
		b.broadcast(frame)
	}
}

func (b *DummyBridge) broadcast(frame []byte) {
	b.mu.RLock()
	clients := make([]*spyClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()
	for _, c := range clients {
		select {
		case c.out <- frame:
		default:
			if b.policy == PolicyKick {
				c.Close()
			}
			// PolicyDrop: silently drop this frame for this slow spy.
		}
	}
}

func (b *DummyBridge) removeClient(cl *spyClient, conn net.Conn) {
	b.mu.Lock()
	_, existed := b.clients[cl]
	delete(b.clients, cl)
	b.mu.Unlock()
	if existed {
		cl.Close()
		_ = conn.Close()
		b.logger.Info("dummybridge_client_disconnected")
	}
}

// Shutdown closes the listener and all spy connections.
func (b *DummyBridge) Shutdown() {
	if b.listener != nil {
		_ = b.listener.Close()
	}
	b.mu.Lock()
	for cl, conn := range b.clients {
		cl.Close()
		_ = conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}
