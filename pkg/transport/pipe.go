package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// Factory creates transport connections. Implementations can provide real
// network connections or virtual pipes for testing.
type Factory interface {
	// CreateUDPConn creates a UDP-like packet connection bound to port.
	CreateUDPConn(port int) (net.PacketConn, error)

	// CreateTCPListener creates a TCP-like listener bound to port.
	// Returns nil if TCP is not supported.
	CreateTCPListener(port int) (net.Listener, error)
}

// NetworkCondition configures network behavior simulation for a Pipe.
type NetworkCondition struct {
	// DropRate is the probability of dropping a packet (0.0 - 1.0).
	DropRate float64

	// DelayMin/DelayMax bound a uniformly distributed per-packet delay.
	DelayMin time.Duration
	DelayMax time.Duration

	// DuplicateRate is the probability of sending a packet twice (0.0 - 1.0).
	DuplicateRate float64

	// ReorderRate is the probability of delaying a packet by an extra
	// ReorderDelay, simulating reordering relative to its neighbors.
	ReorderRate  float64
	ReorderDelay time.Duration
}

// delay samples a delay duration from the configured range using rng.
func (c NetworkCondition) delay(rng *rand.Rand) time.Duration {
	if c.DelayMax <= 0 {
		return 0
	}
	d := c.DelayMin
	if c.DelayMax > c.DelayMin {
		d += time.Duration(rng.Int63n(int64(c.DelayMax - c.DelayMin)))
	}
	return d
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic message delivery in a background goroutine.
	AutoProcess bool

	// ProcessInterval is how often the auto-processor checks for messages.
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{AutoProcess: true, ProcessInterval: time.Millisecond}
}

// Pipe provides bidirectional in-memory packet communication between two
// endpoints, wrapping pion's test.Bridge and adding network condition
// simulation on top. By default it automatically delivers messages in a
// background goroutine; use SetAutoProcess(false) for manual control over
// delivery order in deterministic tests.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a new bidirectional pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	if config.ProcessInterval <= 0 {
		config.ProcessInterval = time.Millisecond
	}

	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

// startAutoProcess starts the background message delivery goroutine.
func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic message delivery. Disable it
// to pin exact packet orderings for deterministic tests; call Tick or
// Process manually in that mode.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}
	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
		return
	}
	close(p.stopCh)
	p.wg.Wait()
}

// AutoProcess returns whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoProcess
}

// SetCondition configures network condition simulation, applied to both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current network condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// snapshot returns the current condition and shared RNG under the read lock.
func (p *Pipe) snapshot() (NetworkCondition, *rand.Rand) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition, p.rng
}

// Conn0 returns the connection for endpoint 0.
func (p *Pipe) Conn0() net.Conn { return p.bridge.GetConn0() }

// Conn1 returns the connection for endpoint 1.
func (p *Pipe) Conn1() net.Conn { return p.bridge.GetConn1() }

// Tick delivers one packet in each direction (if available), returning the
// number delivered (0, 1, or 2). Not normally needed when AutoProcess is on.
func (p *Pipe) Tick() int { return p.bridge.Tick() }

// Process delivers all queued packets, returning the number delivered. Not
// normally needed when AutoProcess is on.
func (p *Pipe) Process() int {
	total := 0
	for {
		n := p.Tick()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Close closes both endpoints of the pipe and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID   int // Endpoint ID (0 or 1)
	Port int // Logical port number
}

func (a PipeAddr) Network() string { return "pipe" }
func (a PipeAddr) String() string  { return fmt.Sprintf("pipe:%d:%d", a.ID, a.Port) }

// PipePacketConn wraps a Pipe endpoint to implement net.PacketConn, letting
// pipes stand in for Matter's UDP transport layer in tests.
type PipePacketConn struct {
	conn     net.Conn
	localID  int
	port     int
	peerAddr net.Addr
	pipe     *Pipe
}

// ReadFrom reads a packet from the pipe; the returned address is always the peer's.
func (c *PipePacketConn) ReadFrom(b []byte) (n int, addr net.Addr, err error) {
	n, err = c.conn.Read(b)
	return n, c.peerAddr, err
}

// WriteTo writes a packet, applying any configured drop/delay/duplicate
// simulation first. addr is ignored since a pipe has exactly one peer.
func (c *PipePacketConn) WriteTo(b []byte, addr net.Addr) (n int, err error) {
	if c.pipe != nil {
		cond, rng := c.pipe.snapshot()

		if cond.DropRate > 0 && rng.Float64() < cond.DropRate {
			return len(b), nil
		}
		if d := cond.delay(rng); d > 0 {
			time.Sleep(d)
		}
		if cond.DuplicateRate > 0 && rng.Float64() < cond.DuplicateRate {
			if _, err := c.conn.Write(b); err != nil {
				return 0, err
			}
		}
	}
	return c.conn.Write(b)
}

func (c *PipePacketConn) Close() error { return c.conn.Close() }

func (c *PipePacketConn) LocalAddr() net.Addr { return PipeAddr{ID: c.localID, Port: c.port} }

func (c *PipePacketConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *PipePacketConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *PipePacketConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

var _ net.PacketConn = (*PipePacketConn)(nil)

// PipeFactory creates transports backed by a shared Pipe, for in-memory
// testing without real network I/O. Messages are delivered automatically
// unless Pipe().SetAutoProcess(false) is called.
type PipeFactory struct {
	mu          sync.Mutex
	peerFactory *PipeFactory
	pipe        *Pipe
	localID     int // 0 or 1
	udpConn     *PipePacketConn
}

// NewPipeFactoryPair creates a pair of connected PipeFactory instances with
// auto-processing enabled.
//
// Example:
//
//	f0, f1 := transport.NewPipeFactoryPair()
//	// Use f0 for device, f1 for controller - messages flow automatically.
func NewPipeFactoryPair() (*PipeFactory, *PipeFactory) {
	return NewPipeFactoryPairWithConfig(DefaultPipeConfig())
}

// NewPipeFactoryPairWithConfig creates a connected PipeFactory pair backed
// by a single Pipe built from config.
//
// For deterministic tests:
//
//	f0, f1 := transport.NewPipeFactoryPairWithConfig(transport.PipeConfig{AutoProcess: false})
//	// ... do work ...
//	f0.Pipe().Process() // manually deliver messages
func NewPipeFactoryPairWithConfig(config PipeConfig) (*PipeFactory, *PipeFactory) {
	pipe := NewPipeWithConfig(config)

	f0 := &PipeFactory{pipe: pipe, localID: 0}
	f1 := &PipeFactory{pipe: pipe, localID: 1}
	f0.peerFactory = f1
	f1.peerFactory = f0

	return f0, f1
}

// Pipe returns the underlying pipe for configuration and manual message control.
func (f *PipeFactory) Pipe() *Pipe { return f.pipe }

// LocalAddr returns the local address for this side of the pipe.
func (f *PipeFactory) LocalAddr() net.Addr {
	return PipeAddr{ID: f.localID, Port: DefaultPort}
}

// PeerAddr returns the peer address for this side of the pipe.
func (f *PipeFactory) PeerAddr() net.Addr {
	return PipeAddr{ID: 1 - f.localID, Port: DefaultPort}
}

// CreateUDPConn creates a UDP-like connection using the pipe, caching it
// across calls since a PipeFactory has exactly one peer.
func (f *PipeFactory) CreateUDPConn(port int) (net.PacketConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.udpConn != nil {
		return f.udpConn, nil
	}

	conn := f.pipe.Conn0()
	if f.localID != 0 {
		conn = f.pipe.Conn1()
	}

	f.udpConn = &PipePacketConn{
		conn:     conn,
		localID:  f.localID,
		port:     port,
		peerAddr: PipeAddr{ID: 1 - f.localID, Port: port},
		pipe:     f.pipe,
	}
	return f.udpConn, nil
}

// CreateTCPListener would create a TCP listener backed by the pipe; Matter
// end-to-end tests only ever need UDP, so this intentionally returns nil.
func (f *PipeFactory) CreateTCPListener(port int) (net.Listener, error) {
	return nil, nil
}

// SetCondition configures network condition simulation for this factory's pipe.
func (f *PipeFactory) SetCondition(cond NetworkCondition) {
	f.pipe.SetCondition(cond)
}

var _ Factory = (*PipeFactory)(nil)
