// Package routingtable holds the per-node finger table: the 8 successor
// fingers plus the distinguished predecessor entry, and the fix-up/
// fix-down maintenance algorithm that keeps them consistent as the ring
// changes.
package routingtable

import (
	"fmt"
	"sync"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

// NumFingers is the number of successor fingers (entries 0..7).
const NumFingers = 8

// PredecessorIdx is the index of the distinguished predecessor entry.
const PredecessorIdx = NumFingers

// fingerEntry holds the node currently covering a finger point.
//
// Mutation only ever happens from the node's single event-loop goroutine,
// but entries carry their own lock so a concurrent debug read (DebugLog
// from a signal handler, a future admin endpoint) never races a handler.
type fingerEntry struct {
	mu   sync.RWMutex
	node domain.Node
}

func (e *fingerEntry) get() domain.Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.node
}

func (e *fingerEntry) set(n domain.Node) {
	e.mu.Lock()
	e.node = n
	e.mu.Unlock()
}

// FingerTable is the 9-entry routing table of a single node: 8 successor
// fingers at self.id + 2^i, plus the predecessor at index PredecessorIdx.
type FingerTable struct {
	logger   logger.Logger
	self     domain.Node
	fingerID [NumFingers]domain.ID
	fingers  [NumFingers]*fingerEntry
	pred     *fingerEntry
}

// New builds a finger table for self with every finger_id precomputed as
// (self.id + 2^i) mod 256. Entries are left self-pointing; call Init to
// set that explicitly for a fresh solo ring.
func New(self domain.Node, opts ...Option) *FingerTable {
	ft := &FingerTable{
		self:   self,
		logger: &logger.NopLogger{},
		pred:   &fingerEntry{node: self},
	}
	for i := 0; i < NumFingers; i++ {
		ft.fingerID[i] = domain.ID(uint8(self.ID) + (1 << uint(i)))
		ft.fingers[i] = &fingerEntry{node: self}
	}
	for _, opt := range opts {
		opt(ft)
	}
	ft.logger.Debug("finger table constructed", logger.F("self", self.ID.String()))
	return ft
}

// Init configures the table for a lone node: every finger and the
// predecessor point back to self. The lone node owns the whole ring.
func (ft *FingerTable) Init() {
	for i := 0; i < NumFingers; i++ {
		ft.fingers[i].set(ft.self)
	}
	ft.pred.set(ft.self)
	ft.logger.Debug("finger table initialized to solo ring")
}

// Self returns the local node owning this table.
func (ft *FingerTable) Self() domain.Node { return ft.self }

// FingerID returns the fixed target point of finger i.
func (ft *FingerTable) FingerID(i int) domain.ID { return ft.fingerID[i] }

// Successor returns the node currently covering finger i.
func (ft *FingerTable) Successor(i int) domain.Node {
	return ft.fingers[i].get()
}

// SetSuccessor overwrites finger i directly, bypassing fix-up/fix-down.
// Used during initialization and explicit ring-protocol assignments; see
// Update for the maintained form.
func (ft *FingerTable) SetSuccessor(i int, n domain.Node) {
	ft.fingers[i].set(n)
	ft.logger.Debug("successor set", logger.F("index", i), logger.FNode("node", n))
}

// Predecessor returns the node currently believed to be the predecessor.
func (ft *FingerTable) Predecessor() domain.Node { return ft.pred.get() }

// SetPredecessor overwrites the predecessor entry directly.
func (ft *FingerTable) SetPredecessor(n domain.Node) {
	ft.pred.set(n)
	ft.logger.Debug("predecessor set", logger.FNode("node", n))
}

// FindForForward returns the index of the finger to forward to when
// target is not owned locally: the largest-prefix successor finger whose
// finger_id still lies in (self.id, target], or the finger exactly
// covering target, or entry 7 (farthest reach) as a fallback. Outside the
// fallback it never returns an entry whose covering node is self; on a
// solo ring every finger self-points, so the fallback entry does too.
func (ft *FingerTable) FindForForward(target domain.ID) int {
	best := -1
	for i := 0; i < NumFingers; i++ {
		node := ft.fingers[i].get()
		if node.ID == target {
			return i
		}
		if node.ID == ft.self.ID {
			continue
		}
		if domain.InRange(ft.fingerID[i], ft.self.ID, target) {
			best = i
		}
	}
	if best >= 0 {
		return best
	}
	return NumFingers - 1
}

// ExpectToFind reports whether the target should be owned by the node
// currently assigned to finger idx: true when target is in
// (finger_id, node_id] or equals finger_id itself.
func (ft *FingerTable) ExpectToFind(target domain.ID, idx int) bool {
	fid := ft.fingerID[idx]
	node := ft.fingers[idx].get()
	return target == fid || domain.InRange(target, fid, node.ID)
}

// FixUp propagates entry j's node forward to later fingers k=j+1..7 as
// long as finger_id[k] still lies in (self.id, node_id[j]], stopping at
// the first k that does not qualify.
func (ft *FingerTable) FixUp(j int) {
	if j < 0 || j >= NumFingers-1 {
		return
	}
	nodeJ := ft.fingers[j].get()
	for k := j + 1; k < NumFingers; k++ {
		if !domain.InRange(ft.fingerID[k], ft.self.ID, nodeJ.ID) {
			break
		}
		ft.fingers[k].set(nodeJ)
		ft.logger.Debug("fix_up propagated", logger.F("from", j), logger.F("to", k), logger.FNode("node", nodeJ))
	}
}

// FixDown propagates entry j's node backward to earlier fingers k=j-1..0,
// stopping as soon as finger k is covered by a node sitting exactly on its
// point (finger_id[k] == node_id[k]), and otherwise copying j's node into k when node_id[j] lies
// in (finger_id[k], node_id[k]].
func (ft *FingerTable) FixDown(j int) {
	if j <= 0 || j > NumFingers {
		return
	}
	nodeJ := ft.nodeAt(j)
	for k := j - 1; k >= 0; k-- {
		curr := ft.fingers[k].get()
		if ft.fingerID[k] == curr.ID {
			break
		}
		if domain.InRange(nodeJ.ID, ft.fingerID[k], curr.ID) {
			ft.fingers[k].set(nodeJ)
			ft.logger.Debug("fix_down propagated", logger.F("from", j), logger.F("to", k), logger.FNode("node", nodeJ))
		}
	}
}

// nodeAt reads entry idx, treating PredecessorIdx as the predecessor
// entry so FixDown(PredecessorIdx) (the post-predecessor-change pass
// required after every predecessor update) works uniformly.
func (ft *FingerTable) nodeAt(idx int) domain.Node {
	if idx == PredecessorIdx {
		return ft.pred.get()
	}
	return ft.fingers[idx].get()
}

// Update writes newNode into entry idx and then runs the maintenance
// algorithm: FixDown(idx) when idx>0, FixUp(idx) when idx<NumFingers. A
// no-op when newNode already equals the existing entry.
func (ft *FingerTable) Update(idx int, newNode domain.Node) {
	if idx == PredecessorIdx {
		if ft.pred.get() == newNode {
			return
		}
		ft.pred.set(newNode)
		ft.FixDown(PredecessorIdx)
		return
	}
	if idx < 0 || idx >= NumFingers {
		ft.logger.Warn("Update: index out of range", logger.F("requested", idx))
		return
	}
	if ft.fingers[idx].get() == newNode {
		return
	}
	ft.fingers[idx].set(newNode)
	if idx > 0 {
		ft.FixDown(idx)
	}
	if idx < NumFingers {
		ft.FixUp(idx)
	}
}

// DebugLog emits a single structured DEBUG entry with the full table
// contents: self, predecessor, and every finger with its fixed point and
// current covering node.
func (ft *FingerTable) DebugLog() {
	fingers := make([]map[string]any, 0, NumFingers)
	for i := 0; i < NumFingers; i++ {
		node := ft.fingers[i].get()
		fingers = append(fingers, map[string]any{
			"index":     i,
			"finger_id": ft.fingerID[i].String(),
			"node_id":   node.ID.String(),
			"addr":      node.Addr(),
		})
	}
	pred := ft.pred.get()
	ft.logger.Debug("finger table snapshot",
		logger.F("self", fmt.Sprintf("%s@%s", ft.self.ID.String(), ft.self.Addr())),
		logger.F("predecessor", fmt.Sprintf("%s@%s", pred.ID.String(), pred.Addr())),
		logger.F("fingers", fingers),
	)
}
