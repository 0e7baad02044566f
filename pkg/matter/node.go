package matter

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/chipcore/matterd/pkg/acl"
	"github.com/chipcore/matterd/pkg/commissioning"
	"github.com/chipcore/matterd/pkg/datamodel"
	"github.com/chipcore/matterd/pkg/discovery"
	"github.com/chipcore/matterd/pkg/exchange"
	"github.com/chipcore/matterd/pkg/fabric"
	"github.com/chipcore/matterd/pkg/im"
	"github.com/chipcore/matterd/pkg/message"
	"github.com/chipcore/matterd/pkg/securechannel"
	"github.com/chipcore/matterd/pkg/securechannel/pase"
	"github.com/chipcore/matterd/pkg/session"
	"github.com/chipcore/matterd/pkg/transport"
	"github.com/pion/logging"
)

// Node represents a running Matter node (device or controller).
// It coordinates all stack layers and manages the device lifecycle.
type Node struct {
	config NodeConfig
	state  NodeState
	log    logging.LeveledLogger

	// Core managers
	fabricTable  *fabric.Table
	sessionMgr   *session.Manager
	transportMgr *transport.Manager
	exchangeMgr  *exchange.Manager
	scMgr        *securechannel.Manager
	imEngine     *im.Engine
	discoveryMgr *discovery.Manager
	aclMgr       *acl.Manager

	// Data model
	dataModel  *datamodel.BasicNode
	dispatcher *nodeDispatcher

	// Endpoints (including root)
	endpoints map[datamodel.EndpointID]*Endpoint

	// Commissioning
	commWindow *commissioning.CommissioningWindow
	paseInfo   *paseInfo // PASE parameters for commissioning

	// layers records which startup steps succeeded, in the order they were
	// brought up, so Stop (or a failed Start) can tear them down in exact
	// reverse order without hand-maintaining a second sequence.
	layers []nodeLayer

	// Synchronization
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once

	// Context for background operations
	ctx    context.Context
	cancel context.CancelFunc
}

// paseInfo holds PASE parameters derived from the passcode.
type paseInfo struct {
	verifier   *pase.Verifier
	salt       []byte
	iterations uint32
}

// nodeLayer is one stage of the node's startup sequence: transport,
// exchange routing, discovery. Start walks startupSequence forward and
// records each successful layer here; both a failed Start and a normal
// Stop unwind through shutdown in reverse, so the teardown order can never
// drift out of sync with the startup order.
type nodeLayer struct {
	name     string
	shutdown func(*Node)
}

// startupSequence is the node's bring-up order. Each entry's bring-up
// closure returns an error to abort startup; on success its name and
// shutdown closure are pushed onto Node.layers for later unwinding.
var startupSequence = []struct {
	name     string
	bringUp  func(*Node) error
	shutdown func(*Node)
}{
	{"transport", (*Node).startTransport, (*Node).stopTransport},
	{"exchange", (*Node).startExchangeAndProtocols, (*Node).stopExchange},
	{"discovery", (*Node).startDiscovery, (*Node).stopDiscovery},
}

// NewNode creates a new Matter node with the given configuration.
// The node is created but not started. Call Start() to begin operation.
func NewNode(config NodeConfig) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	n := &Node{
		config:    config,
		state:     NodeStateUninitialized,
		endpoints: make(map[datamodel.EndpointID]*Endpoint),
		stopCh:    make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		n.log = config.LoggerFactory.NewLogger("matter")
	}

	n.dataModel = datamodel.NewNode()
	n.dispatcher = newNodeDispatcher(n.dataModel)

	if err := n.loadState(); err != nil {
		return nil, err
	}
	if err := n.initManagers(); err != nil {
		return nil, err
	}

	// Root endpoint needs the fabric table and data model to answer
	// descriptor-cluster queries about the rest of the endpoint tree.
	rootEP := createRootEndpoint(&config, n.fabricTable, n.dataModel)
	n.endpoints[RootEndpointID] = rootEP
	n.dataModel.AddEndpoint(rootEP.Inner())

	if err := n.initPASE(); err != nil {
		return nil, err
	}

	n.state = NodeStateInitialized
	return n, nil
}

// loadState loads persisted fabrics, ACLs, and counters from storage.
func (n *Node) loadState() error {
	fabrics, err := n.config.Storage.LoadFabrics()
	if err != nil {
		return err
	}
	n.fabricTable = fabric.NewTable(fabric.TableConfig{})
	for _, f := range fabrics {
		if err := n.fabricTable.Add(f); err != nil {
			return err
		}
	}

	acls, err := n.config.Storage.LoadACLs()
	if err != nil {
		return err
	}
	store := acl.NewMemoryStore()
	for _, entry := range acls {
		store.Save(fabric.FabricIndex(entry.FabricIndex), *entry)
	}
	n.aclMgr = acl.NewManager(store, acl.NullDeviceTypeResolver{})

	counters, err := n.config.Storage.LoadCounters()
	if err != nil {
		return err
	}
	if counters.LocalCounter == 0 {
		// Random initial counter per Spec 4.6.1.1, to make counter reuse
		// across a factory-reset/re-provision cycle astronomically unlikely.
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return err
		}
		counters.LocalCounter = binary.LittleEndian.Uint32(buf[:])
	}

	return nil
}

// initManagers constructs managers that don't depend on the running
// transport/exchange layers and so can be built ahead of Start.
func (n *Node) initManagers() error {
	n.sessionMgr = session.NewManager(session.ManagerConfig{})
	return nil
}

// initPASE generates PASE parameters from the configured passcode.
func (n *Node) initPASE() error {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	const minIterations = 1000
	verifier, err := pase.GenerateVerifier(n.config.Passcode, salt, minIterations)
	if err != nil {
		return err
	}

	n.paseInfo = &paseInfo{verifier: verifier, salt: salt, iterations: minIterations}
	return nil
}

// Start initializes the network stack and begins operation.
// For uncommissioned devices, this enables commissioning discovery.
// For commissioned devices, this enables operational discovery.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.state.CanStart() {
		if n.state.IsRunning() {
			return ErrAlreadyStarted
		}
		return ErrNotInitialized
	}

	n.state = NodeStateStarting
	n.ctx, n.cancel = context.WithCancel(ctx)

	for _, step := range startupSequence {
		if err := step.bringUp(n); err != nil {
			n.unwindLayersLocked()
			n.state = NodeStateInitialized
			return err
		}
		n.layers = append(n.layers, nodeLayer{name: step.name, shutdown: step.shutdown})
	}

	if n.fabricTable.Count() > 0 {
		n.state = NodeStateCommissioned
		n.advertiseOperational()
	} else {
		n.state = NodeStateUncommissioned
		n.openCommissioningWindowLocked(3 * time.Minute)
	}

	if n.log != nil {
		n.log.Infof("node started, state=%s", n.state)
	}
	if n.config.OnStateChanged != nil {
		n.config.OnStateChanged(n.state)
	}

	return nil
}

// unwindLayersLocked shuts down every successfully started layer in
// reverse order, clearing n.layers. Called under n.mu.
func (n *Node) unwindLayersLocked() {
	for i := len(n.layers) - 1; i >= 0; i-- {
		n.layers[i].shutdown(n)
	}
	n.layers = nil
}

// startTransport initializes the transport layer.
func (n *Node) startTransport() error {
	var udpConn net.PacketConn
	var tcpListener net.Listener
	var err error

	if n.config.TransportFactory != nil {
		udpConn, err = n.config.TransportFactory.CreateUDPConn(n.config.Port)
		if err != nil {
			return err
		}
		tcpListener, err = n.config.TransportFactory.CreateTCPListener(n.config.Port)
		if err != nil {
			return err
		}
	}

	handler := func(msg *transport.ReceivedMessage) {
		if n.exchangeMgr != nil {
			n.exchangeMgr.OnMessageReceived(msg)
		}
	}

	n.transportMgr, err = transport.NewManager(transport.ManagerConfig{
		Port:           n.config.Port,
		UDPEnabled:     true,
		TCPEnabled:     true,
		UDPConn:        udpConn,
		TCPListener:    tcpListener,
		MessageHandler: handler,
		LoggerFactory:  n.config.LoggerFactory,
		RateLimit:      n.config.InboundRateLimit,
	})
	if err != nil {
		return err
	}

	return n.transportMgr.Start()
}

// stopTransport shuts down the transport layer.
func (n *Node) stopTransport() {
	if n.transportMgr != nil {
		n.transportMgr.Stop()
	}
}

// startExchangeAndProtocols brings up the exchange manager and registers
// the secure-channel and interaction-model protocol handlers on it. These
// are one startup step because the exchange manager is useless without at
// least one protocol registered on it, and nothing else depends on the two
// being separable.
func (n *Node) startExchangeAndProtocols() error {
	n.exchangeMgr = exchange.NewManager(exchange.ManagerConfig{
		SessionManager:   n.sessionMgr,
		TransportManager: n.transportMgr,
		LoggerFactory:    n.config.LoggerFactory,
	})

	n.scMgr = securechannel.NewManager(securechannel.ManagerConfig{
		SessionManager: n.sessionMgr,
		FabricTable:    n.fabricTable,
		Callbacks: securechannel.Callbacks{
			OnSessionEstablished: n.onSessionEstablished,
			OnSessionError:       n.onSessionError,
			OnSessionClosed:      n.onSessionClosed,
		},
		LoggerFactory: n.config.LoggerFactory,
	})

	aclChecker := acl.NewChecker(acl.NullDeviceTypeResolver{})
	n.imEngine = im.NewEngine(im.EngineConfig{
		Dispatcher:    n.dispatcher,
		ACLChecker:    aclChecker,
		LoggerFactory: n.config.LoggerFactory,
	})

	n.exchangeMgr.RegisterProtocol(message.ProtocolSecureChannel, newSecureChannelAdapter(n.scMgr))
	n.exchangeMgr.RegisterProtocol(im.ProtocolID, newIMAdapter(n.imEngine))

	return nil
}

// stopExchange shuts down the exchange layer.
func (n *Node) stopExchange() {
	if n.exchangeMgr != nil {
		n.exchangeMgr.Close()
	}
}

// startDiscovery initializes DNS-SD.
func (n *Node) startDiscovery() error {
	var err error
	n.discoveryMgr, err = discovery.NewManager(discovery.ManagerConfig{
		Port:          n.config.Port,
		LoggerFactory: n.config.LoggerFactory,
	})
	return err
}

// stopDiscovery shuts down DNS-SD.
func (n *Node) stopDiscovery() {
	if n.discoveryMgr != nil {
		n.discoveryMgr.Close()
	}
}

// advertiseOperational starts operational DNS-SD advertisement for every
// commissioned fabric.
func (n *Node) advertiseOperational() {
	if n.discoveryMgr == nil {
		return
	}
	n.fabricTable.ForEach(func(info *fabric.FabricInfo) error {
		n.discoveryMgr.StartOperational(info.CompressedFabricID, info.NodeID, discovery.OperationalTXT{})
		return nil
	})
}

// Stop gracefully shuts down the node.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.state.CanStop() {
		if n.state == NodeStateStopped {
			return ErrAlreadyStopped
		}
		return ErrNotStarted
	}

	n.state = NodeStateStopping

	n.stopOnce.Do(func() {
		close(n.stopCh)
		if n.cancel != nil {
			n.cancel()
		}
	})

	// Clear the window reference before closing it, so a callback fired by
	// Close sees commissioning already torn down rather than racing Stop.
	if n.commWindow != nil {
		cw := n.commWindow
		n.commWindow = nil
		cw.Close()
	}

	n.unwindLayersLocked()
	n.saveState()

	n.state = NodeStateStopped
	if n.log != nil {
		n.log.Info("node stopped")
	}
	if n.config.OnStateChanged != nil {
		n.config.OnStateChanged(n.state)
	}

	return nil
}

// saveState persists current state to storage.
func (n *Node) saveState() {
	// TODO: thread the live message counter through instead of a fresh zero state.
	n.config.Storage.SaveCounters(NewCounterState())
}

// State returns the current node state.
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// refreshDescriptorLocked rebuilds the root endpoint's descriptor cluster
// from the current endpoint set. Called under n.mu after any endpoint
// add/remove, since the descriptor's PartsList must always reflect the
// live endpoint tree (Spec 9.5).
func (n *Node) refreshDescriptorLocked() {
	endpoints := make([]*Endpoint, 0, len(n.endpoints))
	for _, e := range n.endpoints {
		endpoints = append(endpoints, e)
	}
	updateDescriptorCluster(n.dataModel, endpoints)
}

// AddEndpoint registers an endpoint with the node.
// The Root Endpoint (0) is created automatically and cannot be added manually.
func (n *Node) AddEndpoint(ep *Endpoint) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ep.ID() == RootEndpointID {
		return ErrRootEndpointReserved
	}
	if _, exists := n.endpoints[ep.ID()]; exists {
		return ErrEndpointExists
	}

	updateEndpointDescriptor(ep, n.dataModel)
	n.endpoints[ep.ID()] = ep
	n.dataModel.AddEndpoint(ep.Inner())
	n.refreshDescriptorLocked()

	return nil
}

// RemoveEndpoint removes an endpoint by ID.
func (n *Node) RemoveEndpoint(id datamodel.EndpointID) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if id == RootEndpointID {
		return ErrRootEndpointReserved
	}
	if _, exists := n.endpoints[id]; !exists {
		return ErrEndpointNotFound
	}

	delete(n.endpoints, id)
	n.dataModel.RemoveEndpoint(id)
	n.refreshDescriptorLocked()

	return nil
}

// GetEndpoint returns an endpoint by ID, or nil if not found.
func (n *Node) GetEndpoint(id datamodel.EndpointID) *Endpoint {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.endpoints[id]
}

// IsCommissioned returns true if the node is commissioned to at least one fabric.
func (n *Node) IsCommissioned() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fabricTable.Count() > 0
}

// Fabrics returns all fabrics the node is commissioned to.
func (n *Node) Fabrics() []*fabric.FabricInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var result []*fabric.FabricInfo
	n.fabricTable.ForEach(func(info *fabric.FabricInfo) error {
		result = append(result, info.Clone())
		return nil
	})
	return result
}

// SessionManager returns the node's session manager.
// Exposed for testing and advanced use cases.
func (n *Node) SessionManager() *session.Manager {
	return n.sessionMgr
}

// SecureChannelManager returns the node's secure channel manager.
// Exposed for testing and advanced use cases.
func (n *Node) SecureChannelManager() *securechannel.Manager {
	return n.scMgr
}

// ExchangeManager returns the node's exchange manager.
// Exposed for testing and advanced use cases.
func (n *Node) ExchangeManager() *exchange.Manager {
	return n.exchangeMgr
}

// TransportManager returns the node's transport manager.
// Exposed for testing and advanced use cases.
func (n *Node) TransportManager() *transport.Manager {
	return n.transportMgr
}

// LoggerFactory returns the node's logger factory.
// Returns nil if no logger factory was configured.
func (n *Node) LoggerFactory() logging.LoggerFactory {
	return n.config.LoggerFactory
}

// RemoveFabric removes the node from a fabric.
func (n *Node) RemoveFabric(index fabric.FabricIndex) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.fabricTable.Remove(index); err != nil {
		return ErrFabricNotFound
	}

	n.config.Storage.DeleteFabric(index)

	if n.fabricTable.Count() == 0 && n.state == NodeStateCommissioned {
		n.state = NodeStateUncommissioned
		if n.config.OnStateChanged != nil {
			n.config.OnStateChanged(n.state)
		}
	}

	return nil
}

// Session callbacks

func (n *Node) onSessionEstablished(ctx *session.SecureContext) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ctx.SessionType() == session.SessionTypePASE && n.commWindow != nil {
		n.commWindow.OnPASEComplete(ctx)
	}
	if n.config.OnSessionEstablished != nil {
		n.config.OnSessionEstablished(ctx.LocalSessionID(), ctx.SessionType())
	}
}

func (n *Node) onSessionError(err error, stage string) {
	if n.log != nil {
		n.log.Warnf("session error at %s: %v", stage, err)
	}
}

func (n *Node) onSessionClosed(localSessionID uint16) {
	if n.config.OnSessionClosed != nil {
		n.config.OnSessionClosed(localSessionID)
	}
}
