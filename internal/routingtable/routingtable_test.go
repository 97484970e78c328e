package routingtable

import (
	"testing"

	"KoordeDHT/internal/domain"
)

func node(id domain.ID) domain.Node {
	return domain.Node{ID: id, Port: 5000 + uint16(id), IPv4: 0x7f000001}
}

func TestInitSoloRing(t *testing.T) {
	self := node(100)
	ft := New(self)
	ft.Init()

	if ft.Successor(0) != self {
		t.Fatalf("successor[0] = %+v, want self", ft.Successor(0))
	}
	if ft.Predecessor() != self {
		t.Fatalf("predecessor = %+v, want self", ft.Predecessor())
	}
	if !domain.InRange(50, self.ID, self.ID) {
		t.Fatalf("in_range(50, 100, 100) should be true on a solo ring")
	}
}

func TestFindForForwardNeverReturnsSelf(t *testing.T) {
	self := node(100)
	ft := New(self)
	ft.Init()

	// On a solo ring every finger self-points, so no finger qualifies and
	// the farthest finger is the fallback.
	idx := ft.FindForForward(200)
	if idx != NumFingers-1 {
		t.Fatalf("on a solo ring FindForForward should fall back to the farthest finger, got %d", idx)
	}

	// Once fingers 0..5 (ids 101..132) are covered by node 150, a target
	// of 200 is routed through one of them, never through self.
	ft.SetSuccessor(0, node(150))
	ft.FixUp(0)
	idx = ft.FindForForward(200)
	if ft.Successor(idx).ID == self.ID {
		t.Fatalf("FindForForward returned a self-pointing finger")
	}
}

func TestTwoNodeConvergence(t *testing.T) {
	a := node(100)
	b := node(50)

	aFt := New(a)
	aFt.Init()
	bFt := New(b)
	bFt.Init()

	// A learns of B as its new predecessor and (being alone) successor.
	aFt.Update(PredecessorIdx, b)
	aFt.SetSuccessor(0, b)
	aFt.FixUp(0)

	// B learns of A symmetrically.
	bFt.Update(PredecessorIdx, a)
	bFt.SetSuccessor(0, a)
	bFt.FixUp(0)

	for i := 0; i < NumFingers; i++ {
		if aFt.Successor(i).ID != b.ID {
			t.Fatalf("A finger %d = %v, want B after convergence", i, aFt.Successor(i).ID)
		}
		if bFt.Successor(i).ID != a.ID {
			t.Fatalf("B finger %d = %v, want A after convergence", i, bFt.Successor(i).ID)
		}
	}
	if aFt.Predecessor().ID != b.ID || bFt.Predecessor().ID != a.ID {
		t.Fatalf("predecessor pointers did not converge")
	}
}

func TestUpdateIsNoopWhenUnchanged(t *testing.T) {
	self := node(10)
	ft := New(self)
	ft.Init()
	before := ft.Successor(3)
	ft.Update(3, before)
	if ft.Successor(3) != before {
		t.Fatalf("Update mutated an entry it should have left alone")
	}
}

func TestFixDownPropagatesOverSelfPointingFingers(t *testing.T) {
	self := node(0)
	ft := New(self)
	ft.Init()
	other := node(5)
	ft.SetSuccessor(3, other)
	ft.FixDown(3)
	// Fingers 2, 1, 0 (ids 4, 2, 1) all point at self (id 0), so none has
	// finger_id == node_id and fix_down does not stop; other.ID 5 lies in
	// (finger_id[k], 0] for each of them, so all three adopt other.
	if ft.Successor(0).ID != other.ID {
		t.Fatalf("expected fix_down to propagate backward onto finger 0, got %v", ft.Successor(0).ID)
	}
}
