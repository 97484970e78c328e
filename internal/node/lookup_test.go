package node

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"KoordeDHT/internal/transport"
	"KoordeDHT/internal/wire"
)

// writeTestTGA writes a minimal 1x1 uncompressed truecolor TGA file, the
// only format imgfile.Load understands.
func writeTestTGA(t *testing.T, path string) {
	t.Helper()
	header := make([]byte, 18)
	header[2] = 2 // uncompressed truecolor
	header[12] = 1
	header[14] = 1
	header[16] = 24
	pixel := []byte{0xff, 0x00, 0x00}
	if err := os.WriteFile(path, append(header, pixel...), 0o644); err != nil {
		t.Fatalf("write tga fixture: %v", err)
	}
}

// appendManifest adds name to a node's manifest file and reloads its
// store, mirroring what a real node does after a JOIN/WLCM shifts its
// ring range.
func appendManifest(t *testing.T, tn *testNode, name string) {
	t.Helper()
	manifest := filepath.Join(tn.dir, "manifest.txt")
	f, err := os.OpenFile(manifest, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}
	if _, err := f.WriteString(name + "\n"); err != nil {
		t.Fatalf("append manifest: %v", err)
	}
	f.Close()
	tn.n.reloadStore()
}

func sendIqry(t *testing.T, addr, name string) (wire.Imsg, []byte) {
	t.Helper()
	conn, err := transport.Dial(addr)
	if err != nil {
		t.Fatalf("dial image port: %v", err)
	}
	defer conn.Close()

	iqry := wire.Iqry{
		Header: wire.NetimgHeader{Vers: wire.Vers, Type: wire.NetimgTypeIqry},
		Name:   name,
	}
	if err := transport.WriteAll(conn, wire.EncodeIqry(iqry)); err != nil {
		t.Fatalf("write iqry: %v", err)
	}

	h, err := wire.ReadNetimgHeader(conn)
	if err != nil {
		t.Fatalf("read imsg header: %v", err)
	}
	m, err := wire.DecodeImsgBody(conn, h)
	if err != nil {
		t.Fatalf("decode imsg: %v", err)
	}
	var pixels []byte
	if m.ImFound == wire.ImgFound {
		pixels, err = transport.ReadExact(conn, m.PixelLen())
		if err != nil {
			t.Fatalf("read pixels: %v", err)
		}
	}
	return m, pixels
}

// joinRing connects b to a and waits for both predecessors to converge,
// the same two-node ring every lookup scenario is built on.
func joinRing(t *testing.T, a, b *testNode) {
	t.Helper()
	if err := b.n.SendJoin(a.n.Self().Addr()); err != nil {
		t.Fatalf("send join: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool {
		return a.n.RoutingTable().Predecessor().ID == b.n.Self().ID &&
			b.n.RoutingTable().Predecessor().ID == a.n.Self().ID
	})
}

// TestImageHitLocal covers the case where the queried image's id falls
// in the queried node's own range and it already holds the file: the
// image client gets FOUND with pixel data straight back, no ring search.
func TestImageHitLocal(t *testing.T) {
	a := newTestNode(t, 100)
	defer a.close()
	b := newTestNode(t, 50)
	defer b.close()
	joinRing(t, a, b)

	const name = "fish.tga" // folds to 0x48, in A's range (0x32, 0x64]
	writeTestTGA(t, filepath.Join(a.dir, name))
	appendManifest(t, a, name)

	m, pixels := sendIqry(t, a.imageLn.Addr().String(), name)
	if m.ImFound != wire.ImgFound {
		t.Fatalf("im_found = 0x%02x, want FOUND", m.ImFound)
	}
	if len(pixels) != 3 {
		t.Errorf("pixel payload len = %d, want 3", len(pixels))
	}
	waitUntil(t, time.Second, func() bool { return !a.n.Busy() })
}

// TestImageMissRouted covers the case where the queried image's id falls
// in the other node's range: the receiving node forwards a SRCH, the
// owner confirms it doesn't have the file, and the answer (NFOUND)
// travels back through the originator to the waiting image client.
func TestImageMissRouted(t *testing.T) {
	a := newTestNode(t, 100)
	defer a.close()
	b := newTestNode(t, 50)
	defer b.close()
	joinRing(t, a, b)

	const name = "pic_a.tga" // folds to 0x23, in B's range, never cached anywhere

	m, _ := sendIqry(t, a.imageLn.Addr().String(), name)
	if m.ImFound != wire.ImgNotFound {
		t.Fatalf("im_found = 0x%02x, want NFOUND", m.ImFound)
	}
	waitUntil(t, time.Second, func() bool { return !a.n.Busy() })
}
