package node

import (
	"testing"
	"time"
)

// TestSoloJoinOwnsWholeRing covers the case of a single node with no
// peers: Init leaves every finger and the predecessor pointing at
// itself, so it owns the entire ring on its own.
func TestSoloJoinOwnsWholeRing(t *testing.T) {
	a := newTestNode(t, 100)
	defer a.close()

	if got := a.n.RoutingTable().Predecessor().ID; got != 100 {
		t.Errorf("predecessor = %s, want self (0x64)", got.String())
	}
	if got := a.n.RoutingTable().Successor(0).ID; got != 100 {
		t.Errorf("successor[0] = %s, want self (0x64)", got.String())
	}
}

// TestThreeNodeJoinForwards covers a JOIN that the first node receiving
// it does not own, so it is forwarded deeper into the ring until it
// reaches the node that actually owns the joiner's range.
func TestThreeNodeJoinForwards(t *testing.T) {
	// Ring order by id: B=100 -> A=200 -> wrap -> B. A owns (100,200],
	// B owns (200,100] wrapping through 0. C=50 falls in B's wrapped
	// range, so bootstrapping C through A forces A to forward the JOIN
	// on to B, which is the node that actually accepts it.
	a := newTestNode(t, 200)
	defer a.close()
	b := newTestNode(t, 100)
	defer b.close()
	joinRing(t, a, b)

	c := newTestNode(t, 50)
	defer c.close()

	if err := c.n.SendJoin(a.n.Self().Addr()); err != nil {
		t.Fatalf("send join: %v", err)
	}

	// New ring order: C=50 -> B=100 -> A=200 -> wrap -> C. B's
	// predecessor becomes C; C's predecessor becomes A (unchanged
	// neighbor on the other side) and its successor becomes B.
	waitUntil(t, 2*time.Second, func() bool {
		return b.n.RoutingTable().Predecessor().ID == 50 &&
			c.n.RoutingTable().Predecessor().ID == 200
	})

	if got := b.n.RoutingTable().Successor(0).ID; got != 200 {
		t.Errorf("B.successor[0] = %s, want A (0xc8), unchanged by C's join", got.String())
	}
	if got := c.n.RoutingTable().Successor(0).ID; got != 100 {
		t.Errorf("C.successor[0] = %s, want B (0x64)", got.String())
	}
	// A's own predecessor/successor are unaffected: C never became A's
	// direct neighbor, only B's.
	if got := a.n.RoutingTable().Predecessor().ID; got != 100 {
		t.Errorf("A.predecessor = %s, want B (0x64)", got.String())
	}
}
