package node

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/imagestore"
	"KoordeDHT/internal/routingtable"
	"KoordeDHT/internal/transport"
	"KoordeDHT/internal/wire"
)

// testNode wires up one node backed by real loopback TCP listeners (DHT and
// image) and one accept loop per listener that hands each connection to
// HandleDHTConn or HandleImageConn. Unlike the real event loop, the two
// accept loops run on separate goroutines.
type testNode struct {
	n       *Node
	ln      net.Listener
	imageLn net.Listener
	dir     string
}

func newTestNode(t *testing.T, id domain.ID) *testNode {
	t.Helper()
	ln, err := transport.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	imageLn, err := transport.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen (image): %v", err)
	}
	ipv4, err := domain.IPv4FromString("127.0.0.1")
	if err != nil {
		t.Fatalf("ipv4: %v", err)
	}
	self := domain.Node{ID: id, Port: transport.LocalPort(ln), IPv4: ipv4}

	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.txt")
	if err := os.WriteFile(manifest, nil, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	store := imagestore.New(manifest, dir)

	rt := routingtable.New(self)
	rt.Init()

	tn := &testNode{n: New(self, rt, store), ln: ln, imageLn: imageLn, dir: dir}
	go tn.acceptLoop()
	go tn.imageAcceptLoop()
	return tn
}

func (tn *testNode) acceptLoop() {
	for {
		conn, err := tn.ln.Accept()
		if err != nil {
			return
		}
		if _, err := tn.n.HandleDHTConn(conn, "", nil); err != nil {
			return
		}
	}
}

func (tn *testNode) imageAcceptLoop() {
	for {
		conn, err := tn.imageLn.Accept()
		if err != nil {
			return
		}
		tn.n.HandleImageConn(conn)
	}
}

func (tn *testNode) close() {
	tn.ln.Close()
	tn.imageLn.Close()
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestTwoNodeJoinConvergence(t *testing.T) {
	a := newTestNode(t, 100)
	defer a.close()
	b := newTestNode(t, 50)
	defer b.close()

	if err := b.n.SendJoin(a.n.Self().Addr()); err != nil {
		t.Fatalf("send join: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return a.n.RoutingTable().Predecessor().ID == 50 &&
			b.n.RoutingTable().Predecessor().ID == 100
	})

	if got := a.n.RoutingTable().Successor(0).ID; got != 50 {
		t.Errorf("A.successor[0] = %s, want 0x32", got.String())
	}
	if got := b.n.RoutingTable().Successor(0).ID; got != 100 {
		t.Errorf("B.successor[0] = %s, want 0x64", got.String())
	}
}

func TestJoinIDCollisionTriggersReid(t *testing.T) {
	a := newTestNode(t, 100)
	defer a.close()

	ipv4, _ := domain.IPv4FromString("127.0.0.1")
	collidingLn, err := transport.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer collidingLn.Close()

	received := make(chan byte, 1)
	go func() {
		conn, err := collidingLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		h, err := wire.ReadHeader(conn)
		if err != nil {
			return
		}
		received <- h.Type
	}()

	collidingSelf := domain.Node{ID: 100, Port: transport.LocalPort(collidingLn), IPv4: ipv4}
	conn, err := transport.Dial(a.n.Self().Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	msg := wire.DhtMsg{
		Header: wire.Header{Vers: wire.Vers, Type: wire.TypeJoin},
		TTL:    DefaultTTL,
		Node:   wire.NodeDescrOf(collidingSelf),
	}
	if err := transport.WriteAll(conn, wire.EncodeDhtMsg(msg)); err != nil {
		t.Fatalf("write join: %v", err)
	}
	conn.Close()

	select {
	case typ := <-received:
		if typ != wire.TypeReid {
			t.Errorf("got type 0x%02x, want REID (0x%02x)", typ, wire.TypeReid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reid")
	}
}
