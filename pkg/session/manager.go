package session

import (
	"sync"

	"github.com/chipcore/matterd/pkg/fabric"
	"github.com/chipcore/matterd/pkg/message"
	"github.com/chipcore/matterd/pkg/metrics"
)

// DefaultMaxGroupPeers is the default maximum number of tracked group peers.
const DefaultMaxGroupPeers = 64

// Manager is the node-wide session store: every encrypted exchange between
// this node and a peer, whether established via PASE during commissioning
// or CASE afterward, is looked up and torn down through it. pkg/securechannel
// populates it on handshake completion; pkg/exchange consults it on every
// inbound and outbound message.
//
// It owns three independent tables:
//   - secure: established PASE/CASE contexts, keyed by local session ID
//   - groupPeers: per-sender group message counters, for replay rejection
//   - globalCounter: the unsecured-message counter shared by all handshakes
//     in progress, since PASE/CASE exchanges themselves run unencrypted
type Manager struct {
	secure        *Table
	groupPeers    *GroupPeerTable
	globalCounter *message.GlobalCounter

	mu sync.RWMutex
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxSessions limits the number of concurrent secure sessions.
	// Default: DefaultMaxSessions (16)
	MaxSessions int

	// MaxGroupPeers limits the number of tracked group message senders.
	// Default: DefaultMaxGroupPeers (64)
	MaxGroupPeers int
}

// NewManager creates a new session manager.
func NewManager(config ManagerConfig) *Manager {
	if config.MaxSessions <= 0 {
		config.MaxSessions = DefaultMaxSessions
	}
	if config.MaxGroupPeers <= 0 {
		config.MaxGroupPeers = DefaultMaxGroupPeers
	}

	return &Manager{
		secure:        NewTable(config.MaxSessions),
		groupPeers:    NewGroupPeerTable(config.MaxGroupPeers),
		globalCounter: message.NewGlobalCounter(),
	}
}

// AllocateSessionID allocates a new unique session ID.
// Returns ErrSessionTableFull if no more sessions can be added.
func (m *Manager) AllocateSessionID() (uint16, error) {
	return m.secure.AllocateID()
}

// AddSecureContext registers a freshly-established secure session context.
// Called by pkg/securechannel after a PASE or CASE handshake completes.
func (m *Manager) AddSecureContext(ctx *SecureContext) error {
	if err := m.secure.Add(ctx); err != nil {
		return err
	}
	metrics.ActiveSecureSessions.Inc()
	return nil
}

// zeroizeAndDrop zeroizes the keys of every session in sessions and reports
// their removal to the active-session gauge. Shared by every removal path
// below so the gauge never drifts from the table's true occupancy.
func zeroizeAndDrop(sessions []*SecureContext) {
	for _, ctx := range sessions {
		ctx.ZeroizeKeys()
	}
	if n := len(sessions); n > 0 {
		metrics.ActiveSecureSessions.Sub(float64(n))
	}
}

// RemoveSecureContext removes a secure session context by local session ID.
// The session's keys are zeroized before removal.
func (m *Manager) RemoveSecureContext(localSessionID uint16) {
	if ctx := m.secure.FindByLocalID(localSessionID); ctx != nil {
		zeroizeAndDrop([]*SecureContext{ctx})
	}
	m.secure.Remove(localSessionID)
}

// FindSecureContext finds a secure context by local session ID.
// Returns nil if not found.
func (m *Manager) FindSecureContext(localSessionID uint16) *SecureContext {
	return m.secure.FindByLocalID(localSessionID)
}

// FindSecureContextByPeer finds all contexts for a specific peer.
// Returns an empty slice if none found.
func (m *Manager) FindSecureContextByPeer(fabricIndex fabric.FabricIndex, nodeID fabric.NodeID) []*SecureContext {
	return m.secure.FindByPeer(fabricIndex, nodeID)
}

// FindSecureContextByFabric finds all contexts on a specific fabric.
func (m *Manager) FindSecureContextByFabric(fabricIndex fabric.FabricIndex) []*SecureContext {
	return m.secure.FindByFabric(fabricIndex)
}

// SecureSessionCount returns the number of active secure sessions.
func (m *Manager) SecureSessionCount() int {
	return m.secure.Count()
}

// IsSecureTableFull returns true if no more secure sessions can be added.
func (m *Manager) IsSecureTableFull() bool {
	return m.secure.IsFull()
}

// GlobalCounter returns the global message counter for unsecured messages.
// Used during PASE/CASE handshake.
func (m *Manager) GlobalCounter() *message.GlobalCounter {
	return m.globalCounter
}

// NextGlobalCounter returns and increments the global message counter.
func (m *Manager) NextGlobalCounter() (uint32, error) {
	return m.globalCounter.Next()
}

// CheckGroupCounter verifies a group message counter using trust-first policy.
// Returns true if the message should be accepted.
func (m *Manager) CheckGroupCounter(fabricIndex fabric.FabricIndex, sourceNodeID fabric.NodeID, counter uint32) bool {
	return m.groupPeers.CheckCounter(fabricIndex, sourceNodeID, counter)
}

// RemoveGroupPeer removes group counter tracking for a specific peer.
func (m *Manager) RemoveGroupPeer(fabricIndex fabric.FabricIndex, nodeID fabric.NodeID) {
	m.groupPeers.RemovePeer(fabricIndex, nodeID)
}

// RemoveFabric removes every secure session and group peer tracked on a
// fabric. Called when the fabric itself is removed from the node (the
// Operational Credentials Cluster's RemoveFabric command).
func (m *Manager) RemoveFabric(fabricIndex fabric.FabricIndex) {
	zeroizeAndDrop(m.secure.FindByFabric(fabricIndex))
	m.secure.RemoveByFabric(fabricIndex)
	m.groupPeers.RemoveFabric(fabricIndex)
}

// RemovePeer removes every secure session to, and group counter state for,
// a single peer node. Called when that peer is evicted from the fabric
// (e.g. ACL subject removal or device decommissioning).
func (m *Manager) RemovePeer(fabricIndex fabric.FabricIndex, nodeID fabric.NodeID) {
	zeroizeAndDrop(m.secure.FindByPeer(fabricIndex, nodeID))
	m.secure.RemoveByPeer(fabricIndex, nodeID)
	m.groupPeers.RemovePeer(fabricIndex, nodeID)
}

// Clear zeroizes and drops every tracked session and group peer, and resets
// the global message counter, returning the manager to its just-constructed
// state. Used on factory reset.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*SecureContext
	m.secure.ForEach(func(ctx *SecureContext) bool {
		all = append(all, ctx)
		return true
	})
	zeroizeAndDrop(all)

	m.secure.Clear()
	m.groupPeers.Clear()
	m.globalCounter = message.NewGlobalCounter()
}

// ForEachSecureSession calls fn for each secure session.
// The callback receives the session context and should return true to continue.
func (m *Manager) ForEachSecureSession(fn func(*SecureContext) bool) {
	m.secure.ForEach(fn)
}

// GroupPeerCount returns the number of tracked group peers.
func (m *Manager) GroupPeerCount() int {
	return m.groupPeers.Count()
}
