package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"dsa-agent/config"
	apperrors "dsa-agent/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EOMToken terminates both the request and the response on the executor wire.
const EOMToken = "<|EOM|>"

// Executor runs one Python snippet and returns its captured output. Python
// errors are part of the output; the error return is for sandbox failures.
type Executor interface {
	Execute(ctx context.Context, code string) (string, error)
}

type executorNode struct {
	address    string
	retryAfter time.Time
}

// executorRing hands out executor addresses round robin, skipping nodes that
// are cooling down after a failure.
type executorRing struct {
	mu       sync.Mutex
	nodes    []*executorNode
	next     int
	cooldown time.Duration
}

func newExecutorRing(addresses []string, cooldown time.Duration) (*executorRing, error) {
	seen := make(map[string]struct{}, len(addresses))
	nodes := make([]*executorNode, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		nodes = append(nodes, &executorNode{address: addr})
	}
	if len(nodes) == 0 {
		return nil, errors.New("no valid python executor addresses provided")
	}
	return &executorRing{nodes: nodes, cooldown: cooldown}, nil
}

func (r *executorRing) pick() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for range r.nodes {
		node := r.nodes[r.next]
		r.next = (r.next + 1) % len(r.nodes)
		if now.After(node.retryAfter) {
			return node.address, nil
		}
	}
	return "", errors.New("no healthy python executors available")
}

func (r *executorRing) mark(address string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range r.nodes {
		if node.address != address {
			continue
		}
		if ok {
			node.retryAfter = time.Time{}
		} else {
			node.retryAfter = time.Now().Add(r.cooldown)
		}
		return
	}
}

func (r *executorRing) addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.address)
	}
	return out
}

// connPool keeps idle connections to one executor, bounded by a semaphore.
type connPool struct {
	idle chan net.Conn
	sem  chan struct{}
	dial func(context.Context) (net.Conn, error)
}

func newConnPool(maxSize int, dial func(context.Context) (net.Conn, error)) *connPool {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &connPool{
		idle: make(chan net.Conn, maxSize),
		sem:  make(chan struct{}, maxSize),
		dial: dial,
	}
}

func (p *connPool) get(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-p.idle:
		return conn, nil
	default:
	}
	select {
	case conn := <-p.idle:
		return conn, nil
	case p.sem <- struct{}{}:
		conn, err := p.dial(ctx)
		if err != nil {
			<-p.sem
			return nil, err
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *connPool) put(conn net.Conn) {
	select {
	case p.idle <- conn:
	default:
		p.discard(conn)
	}
}

func (p *connPool) discard(conn net.Conn) {
	_ = conn.Close()
	select {
	case <-p.sem:
	default:
	}
}

func (p *connPool) close() {
	for {
		select {
		case conn := <-p.idle:
			p.discard(conn)
		default:
			return
		}
	}
}

// PythonExecutorPool talks to one or more python executor servers over TCP.
// Each Execute call uses a fresh session so no interpreter state leaks
// between questions or users.
type PythonExecutorPool struct {
	ring        *executorRing
	logger      *zap.Logger
	dialTimeout time.Duration
	ioTimeout   time.Duration
	maxConns    int

	poolsMu sync.Mutex
	pools   map[string]*connPool
}

func NewPythonExecutorPool(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*PythonExecutorPool, error) {
	ring, err := newExecutorRing(cfg.PythonExecutorAddresses, cfg.PythonExecutorCooldownSeconds)
	if err != nil {
		return nil, err
	}
	p := &PythonExecutorPool{
		ring:        ring,
		logger:      logger,
		dialTimeout: cfg.PythonExecutorDialTimeoutSeconds,
		ioTimeout:   cfg.PythonExecutorIOTimeoutSeconds,
		maxConns:    cfg.PythonExecutorMaxConnections,
		pools:       make(map[string]*connPool),
	}
	if err := p.ping(ctx); err != nil {
		return nil, err
	}
	logger.Info("Python executor pool initialized", zap.Strings("addresses", ring.addresses()))
	return p, nil
}

// ping succeeds once any executor accepts a connection.
func (p *PythonExecutorPool) ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range p.ring.addresses() {
		cp := p.poolFor(addr)
		conn, err := cp.get(ctx)
		if err != nil {
			p.ring.mark(addr, false)
			lastErr = err
			p.logger.Warn("Initial executor health check failed", zap.String("address", addr), zap.Error(err))
			continue
		}
		cp.put(conn)
		p.ring.mark(addr, true)
		return nil
	}
	return apperrors.Tag(apperrors.ErrServiceUnavailable, fmt.Errorf("unable to reach any python executor: %w", lastErr))
}

func (p *PythonExecutorPool) poolFor(address string) *connPool {
	p.poolsMu.Lock()
	defer p.poolsMu.Unlock()
	cp, ok := p.pools[address]
	if !ok {
		cp = newConnPool(p.maxConns, func(ctx context.Context) (net.Conn, error) {
			d := &net.Dialer{Timeout: p.dialTimeout}
			return d.DialContext(ctx, "tcp", address)
		})
		p.pools[address] = cp
	}
	return cp
}

// Execute tries each healthy executor once until one answers.
func (p *PythonExecutorPool) Execute(ctx context.Context, code string) (string, error) {
	sessionID := uuid.NewString()
	tried := make(map[string]struct{})
	var lastErr error
	for range p.ring.addresses() {
		addr, err := p.ring.pick()
		if err != nil {
			break
		}
		if _, seen := tried[addr]; seen {
			continue
		}
		tried[addr] = struct{}{}

		out, err := p.call(ctx, addr, sessionID, code)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no healthy python executors available")
	}
	return "", apperrors.Tag(apperrors.ErrCodeExecution, lastErr)
}

func (p *PythonExecutorPool) call(ctx context.Context, addr, sessionID, code string) (string, error) {
	cp := p.poolFor(addr)
	conn, err := cp.get(ctx)
	if err != nil {
		p.ring.mark(addr, false)
		p.logger.Warn("Failed to connect to python executor", zap.String("address", addr), zap.Error(err))
		return "", fmt.Errorf("dial python executor %s: %w", addr, err)
	}

	out, err := p.roundTrip(ctx, conn, sessionID, code)
	if err != nil {
		cp.discard(conn)
		p.ring.mark(addr, false)
		p.logger.Warn("Python executor call failed", zap.String("address", addr), zap.Error(err))
		return "", fmt.Errorf("executor %s: %w", addr, err)
	}
	cp.put(conn)
	p.ring.mark(addr, true)
	p.logger.Debug("Python code executed", zap.String("address", addr), zap.String("session_id", sessionID))
	return out, nil
}

// roundTrip writes "session|code<|EOM|>" and reads until the response EOM.
func (p *PythonExecutorPool) roundTrip(ctx context.Context, conn net.Conn, sessionID, code string) (string, error) {
	deadline := time.Now().Add(p.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	if _, err := io.WriteString(conn, sessionID+"|"+code+EOMToken); err != nil {
		return "", fmt.Errorf("send code: %w", err)
	}
	return readUntilEOM(bufio.NewReader(conn))
}

func readUntilEOM(r io.Reader) (string, error) {
	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
			if s := b.String(); strings.Contains(s, EOMToken) {
				before, _, _ := strings.Cut(s, EOMToken)
				return strings.TrimSpace(before), nil
			}
		}
		if err != nil {
			return "", fmt.Errorf("read result: %w", err)
		}
	}
}

func (p *PythonExecutorPool) Close() error {
	p.poolsMu.Lock()
	defer p.poolsMu.Unlock()
	for addr, cp := range p.pools {
		cp.close()
		delete(p.pools, addr)
	}
	return nil
}
