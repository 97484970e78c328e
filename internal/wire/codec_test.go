package wire

import (
	"bytes"
	"testing"

	"KoordeDHT/internal/domain"
)

func TestDhtMsgRoundTrip(t *testing.T) {
	m := DhtMsg{
		Header: Header{Vers: Vers, Type: TypeJoin},
		TTL:    10,
		Node:   NodeDescr{ID: 42, Port: 5000, IPv4: 0x7f000001},
	}
	raw := EncodeDhtMsg(m)
	if len(raw) != DhtMsgSize {
		t.Fatalf("encoded size = %d, want %d", len(raw), DhtMsgSize)
	}
	r := bytes.NewReader(raw)
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	got, err := DecodeDhtMsgBody(r, h)
	if err != nil {
		t.Fatalf("DecodeDhtMsgBody: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestWlcmMsgRoundTrip(t *testing.T) {
	m := WlcmMsg{
		DhtMsg: DhtMsg{
			Header: Header{Vers: Vers, Type: TypeWlcm},
			TTL:    0,
			Node:   NodeDescr{ID: 100, Port: 6000, IPv4: 0x0a000001},
		},
		Predecessor: NodeDescr{ID: 50, Port: 6001, IPv4: 0x0a000002},
	}
	raw := EncodeWlcmMsg(m)
	if len(raw) != WlcmMsgSize {
		t.Fatalf("encoded size = %d, want %d", len(raw), WlcmMsgSize)
	}
	r := bytes.NewReader(raw)
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	got, err := DecodeWlcmMsgBody(r, h)
	if err != nil {
		t.Fatalf("DecodeWlcmMsgBody: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestSrchMsgRoundTrip(t *testing.T) {
	m := SrchMsg{
		DhtMsg: DhtMsg{
			Header: Header{Vers: Vers, Type: TypeSrch},
			TTL:    10,
			Node:   NodeDescr{ID: 5, Port: 7000, IPv4: 0x0a0a0a0a},
		},
		ImgID: 170,
		Name:  "y.tga",
	}
	raw := EncodeSrchMsg(m)
	if len(raw) != SrchMsgSize {
		t.Fatalf("encoded size = %d, want %d", len(raw), SrchMsgSize)
	}
	r := bytes.NewReader(raw)
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	got, err := DecodeSrchMsgBody(r, h)
	if err != nil {
		t.Fatalf("DecodeSrchMsgBody: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestSrchMsgNameTruncation(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	m := SrchMsg{
		DhtMsg: DhtMsg{Header: Header{Vers: Vers, Type: TypeSrch}},
		ImgID:  1,
		Name:   string(long),
	}
	raw := EncodeSrchMsg(m)
	if len(raw) != SrchMsgSize {
		t.Fatalf("encoded size = %d, want %d", len(raw), SrchMsgSize)
	}
}

func TestImsgRoundTrip(t *testing.T) {
	m := Imsg{
		Header:  NetimgHeader{Vers: Vers, Type: NetimgTypeImsg},
		ImFound: ImgFound,
		Depth:   3,
		Format:  1,
		Width:   64,
		Height:  64,
		Adepth:  0,
		Rle:     0,
	}
	raw := EncodeImsg(m)
	if len(raw) != ImsgSize {
		t.Fatalf("encoded size = %d, want %d", len(raw), ImsgSize)
	}
	r := bytes.NewReader(raw)
	h, err := ReadNetimgHeader(r)
	if err != nil {
		t.Fatalf("ReadNetimgHeader: %v", err)
	}
	got, err := DecodeImsgBody(r, h)
	if err != nil {
		t.Fatalf("DecodeImsgBody: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
	if got.PixelLen() != 64*64*3 {
		t.Fatalf("PixelLen = %d, want %d", got.PixelLen(), 64*64*3)
	}
}

func TestBadVersionRejected(t *testing.T) {
	raw := []byte{0x01, TypeJoin}
	_, err := ReadHeader(bytes.NewReader(raw))
	var badVers ErrBadVersion
	if !bytesErrorsAs(err, &badVers) {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

func bytesErrorsAs(err error, target *ErrBadVersion) bool {
	bv, ok := err.(ErrBadVersion)
	if ok {
		*target = bv
	}
	return ok
}

func TestNodeDescrOfRoundTrip(t *testing.T) {
	n := domain.Node{ID: 7, Port: 1234, IPv4: 0x01020304}
	nd := NodeDescrOf(n)
	if nd.Node() != n {
		t.Fatalf("NodeDescr round trip mismatch: got %+v, want %+v", nd.Node(), n)
	}
}
