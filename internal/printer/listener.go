package printer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReadBufferSize is the size of each read from a connection
const ReadBufferSize = 1024

// Sink receives the bytes read from a connection. FeedQueue implements it.
type Sink interface {
	Enqueue(source string, data []byte) (string, error)
}

// Listener accepts raw ESC/POS connections over TCP, the way a network
// receipt printer does on port 9100.
type Listener struct {
	address     string
	idleTimeout time.Duration
	sink        Sink
	pool        *ClientPool
	logger      *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewListener creates a listener for address. idleTimeout closes a
// connection that sends nothing for that long; 0 disables it.
func NewListener(address string, idleTimeout time.Duration, sink Sink, pool *ClientPool, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		address:     address,
		idleTimeout: idleTimeout,
		sink:        sink,
		pool:        pool,
		logger:      logger.With(zap.String("component", "tcp_listener")),
	}
}

// Start binds the address and begins accepting connections
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.address, err)
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	l.logger.Info("Listening for ESC/POS connections", zap.String("address", ln.Addr().String()))

	l.wg.Add(1)
	go l.acceptLoop(ln)

	return nil
}

// Addr returns the bound address, or nil before Start
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// IsRunning reports whether the listener is accepting connections
func (l *Listener) IsRunning() bool {
	return l.Addr() != nil
}

// Close stops accepting, closes every open connection and waits for the
// receive loops to finish.
func (l *Listener) Close() error {
	l.mu.Lock()
	ln := l.listener
	l.listener = nil
	l.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	l.pool.DisconnectAll()
	l.wg.Wait()

	return err
}

func (l *Listener) acceptLoop(ln net.Listener) {
	defer l.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("Accept failed", zap.Error(err))
			continue
		}

		l.wg.Add(1)
		go l.receiveLoop(conn)
	}
}

// receiveLoop enqueues every read from conn until the peer hangs up
func (l *Listener) receiveLoop(conn net.Conn) {
	defer l.wg.Done()

	remote := conn.RemoteAddr().String()
	id := l.pool.Add("tcp", remote, conn)
	logger := l.logger.With(zap.String("client_id", id), zap.String("remote", remote))

	logger.Info("Client connected")
	defer func() {
		l.pool.Remove(id)
		conn.Close()
		logger.Info("Client disconnected")
	}()

	buf := make([]byte, ReadBufferSize)
	for {
		if l.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(l.idleTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			l.pool.Record(id, n)
			if _, qerr := l.sink.Enqueue("tcp:"+remote, data); qerr != nil {
				logger.Warn("Dropping received bytes", zap.Error(qerr))
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("Receive loop ended", zap.Error(err))
			}
			return
		}
	}
}
