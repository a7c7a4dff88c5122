package connman

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// PoolConfig sizes the connection pool. Connections is the number of
// destination pools the transport keeps warm; MaxSize is the hard upper bound
// of in-flight connections per destination; AcquireTimeout bounds how long a
// caller blocks waiting for a slot when the destination is saturated.
type PoolConfig struct {
	Connections    int
	MaxSize        int
	AcquireTimeout time.Duration
	ConnectTimeout time.Duration
}

// ConnectionPool owns reusable transport-level connections keyed by
// destination. The underlying *http.Transport handles connection reuse and
// idle expiry; the pool adds a hard per-destination concurrency bound
// enforced with a weighted semaphore, so exceeding the bound blocks the
// caller until a connection frees or the acquire timeout elapses. A slot is
// lent for the lifetime of one attempt, including the response body read, and
// returns to the pool when the body is closed.
type ConnectionPool struct {
	config    PoolConfig
	transport *http.Transport
	client    *http.Client

	mu     sync.RWMutex
	slots  map[string]*poolSlot
	closed bool
}

// poolSlot bounds one destination's in-flight connections.
type poolSlot struct {
	sem *semaphore.Weighted
	cap int
}

// NewConnectionPool creates a pool over a fresh http.Transport sized from
// config.
func NewConnectionPool(config PoolConfig) *ConnectionPool {
	if config.Connections <= 0 {
		config.Connections = 10
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 10
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 30 * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:       config.MaxSize,
		MaxIdleConnsPerHost:   config.MaxSize,
		MaxIdleConns:          config.Connections * config.MaxSize,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &ConnectionPool{
		config:    config,
		transport: transport,
		client:    &http.Client{Transport: transport},
		slots:     make(map[string]*poolSlot),
	}
}

// NewConnectionPoolWithTransport wraps a caller-supplied transport, keeping
// the pool's per-destination bounds but leaving connection management to the
// given transport.
func NewConnectionPoolWithTransport(config PoolConfig, transport *http.Transport) *ConnectionPool {
	p := NewConnectionPool(config)
	if transport != nil {
		p.transport = transport
		p.client = &http.Client{Transport: transport}
	}
	return p
}

// slot returns the semaphore bounding destination, creating it with capacity
// maxSize on first use. Capacity is fixed at first use per destination.
func (p *ConnectionPool) slot(destination string, maxSize int) *poolSlot {
	if maxSize <= 0 {
		maxSize = p.config.MaxSize
	}

	p.mu.RLock()
	slot, ok := p.slots[destination]
	p.mu.RUnlock()
	if ok {
		return slot
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if slot, ok = p.slots[destination]; ok {
		return slot
	}
	slot = &poolSlot{sem: semaphore.NewWeighted(int64(maxSize)), cap: maxSize}
	p.slots[destination] = slot
	return slot
}

// Send executes one attempt for destination: it acquires a connection slot,
// performs the request, and arranges for the slot to be released when the
// response body is closed (or immediately on error). Saturation past the
// per-destination bound blocks here until a slot frees, the acquire timeout
// elapses, or the request context is done.
func (p *ConnectionPool) Send(destination string, maxSize int, req *http.Request) (*http.Response, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("connman: connection pool is closed")
	}

	slot := p.slot(destination, maxSize)

	acquireCtx, cancel := context.WithTimeout(req.Context(), p.config.AcquireTimeout)
	err := slot.sem.Acquire(acquireCtx, 1)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("connman: connection pool for %s exhausted: %w", destination, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		slot.sem.Release(1)
		return nil, err
	}

	resp.Body = &pooledBody{ReadCloser: resp.Body, release: func() { slot.sem.Release(1) }}
	return resp, nil
}

// InUse reports how many of the destination's slots are currently lent out.
func (p *ConnectionPool) InUse(destination string) int {
	p.mu.RLock()
	slot, ok := p.slots[destination]
	p.mu.RUnlock()
	if !ok {
		return 0
	}

	// Probe free capacity by draining and restoring; the semaphore exposes no
	// counter of its own.
	free := 0
	for slot.sem.TryAcquire(1) {
		free++
	}
	if free > 0 {
		slot.sem.Release(int64(free))
	}
	return slot.cap - free
}

// Close releases idle connections and rejects further sends. In-flight
// requests finish and return their slots normally.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.transport.CloseIdleConnections()
}

// pooledBody returns the connection slot to the pool when the response body
// is closed. Close is idempotent.
type pooledBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *pooledBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
