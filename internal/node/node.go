// Package node implements the ring protocol engine (JOIN/WLCM/REID/REDRT),
// the lookup protocol engine (SRCH/RPLY/MISS and the image-client state
// machine), and the orchestrator that ties them to a finger table and an
// image store. Every exported handler is meant to run from the single
// event-loop goroutine described in internal/eventloop: no internal
// locking is used because a handler always completes before the next
// event is dispatched.
package node

import (
	"net"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/imagestore"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/routingtable"
)

// DefaultTTL is the starting TTL stamped on a freshly originated JOIN or
// SRCH message.
const DefaultTTL = 10

// pendingQuery tracks the single outstanding image-client request this
// node may be servicing. A nil pendingQuery means the image-client state
// machine is Idle.
type pendingQuery struct {
	conn net.Conn
	name string
}

// Node is the per-instance orchestrator: it owns the finger table, the
// image store, and the image-client state machine, mediating every
// mutation from the single event-loop goroutine that drives it.
type Node struct {
	lgr   logger.Logger
	self  domain.Node
	rt    *routingtable.FingerTable
	store *imagestore.Store

	joinTTL   uint16
	searchTTL uint16

	pending *pendingQuery
}

// New builds a node around an already-constructed finger table and image
// store. Callers are expected to have run rt.Init() (solo ring) or to rely
// on the ring protocol engine to populate the table via a JOIN/WLCM
// exchange, and to have loaded the store once a predecessor is known.
func New(self domain.Node, rt *routingtable.FingerTable, store *imagestore.Store, opts ...Option) *Node {
	n := &Node{
		self:      self,
		rt:        rt,
		store:     store,
		lgr:       &logger.NopLogger{},
		joinTTL:   DefaultTTL,
		searchTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Self returns the node's own descriptor.
func (n *Node) Self() domain.Node { return n.self }

// RoutingTable exposes the finger table, mainly for diagnostics (DebugLog)
// and tests.
func (n *Node) RoutingTable() *routingtable.FingerTable { return n.rt }

// Store exposes the image store, mainly for diagnostics and tests.
func (n *Node) Store() *imagestore.Store { return n.store }

// Busy reports whether the image-client state machine currently has an
// outstanding query.
func (n *Node) Busy() bool { return n.pending != nil }

// reloadStore reloads the image store against the current predecessor.
// Every ring-protocol handler that changes the predecessor calls this
// immediately afterward.
func (n *Node) reloadStore() {
	pred := n.rt.Predecessor()
	if err := n.store.Load(pred.ID, n.self.ID); err != nil {
		n.lgr.Error("failed to reload image store", logger.F("err", err))
	}
}

// Rebind replaces this node's identity in place, used after a REID:
// the old ring position is void, so the finger table is reset to a fresh
// solo ring around the new self and the store is reloaded accordingly.
func (n *Node) Rebind(newSelf domain.Node) {
	n.self = newSelf
	n.rt = routingtable.New(newSelf, routingtable.WithLogger(n.lgr))
	n.rt.Init()
	n.reloadStore()
	n.lgr.Info("rebound to new identity", logger.FNode("self", newSelf))
}
