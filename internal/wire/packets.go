// Package wire implements the fixed, byte-exact packet layouts exchanged
// between DHT nodes and between a node and its image clients. All
// multi-byte integer fields are transmitted in network byte order.
package wire

import "KoordeDHT/internal/domain"

// Vers is the only protocol version this codec understands. Any other
// version byte on a received packet is a fatal protocol error.
const Vers = 0x02

// DHT message type bytes.
const (
	TypeJoin  = 0x08
	TypeWlcm  = 0x04
	TypeReid  = 0x0c
	TypeRedrt = 0x40
	TypeSrch  = 0x10
	TypeRply  = 0x20
	TypeMiss  = 0x22
	AtlocBit  = 0x80
)

// Image-client message type bytes.
const (
	NetimgTypeIqry = 0x01
	NetimgTypeImsg = 0x02
)

// im_found values carried in an IMSG.
const (
	ImgNotFound byte = 0x00
	ImgFound    byte = 0x01
	ImgBusy     byte = 0x0d
)

// HeaderSize is the wire size of Header.
const HeaderSize = 2

// Header is the common {vers, type} prefix of every DHT message.
type Header struct {
	Vers byte
	Type byte
}

// NodeDescrSize is the wire size of NodeDescr.
const NodeDescrSize = 8

// NodeDescr is the wire form of a domain.Node: {rsvd, id, port, ipv4}.
type NodeDescr struct {
	Rsvd byte
	ID   domain.ID
	Port uint16
	IPv4 uint32
}

func NodeDescrOf(n domain.Node) NodeDescr {
	return NodeDescr{ID: n.ID, Port: n.Port, IPv4: n.IPv4}
}

func (d NodeDescr) Node() domain.Node {
	return domain.Node{ID: d.ID, Port: d.Port, IPv4: d.IPv4}
}

// DhtMsgSize is the wire size of DhtMsg.
const DhtMsgSize = HeaderSize + 2 + NodeDescrSize // 12

// DhtMsg is the common envelope for JOIN/REID/REDRT-carrying messages: a
// header, a 16-bit TTL (meaningful only for JOIN and SRCH), and a node
// descriptor.
type DhtMsg struct {
	Header Header
	TTL    uint16
	Node   NodeDescr
}

func (m DhtMsg) IsAtloc() bool { return m.Header.Type&AtlocBit != 0 }
func (m DhtMsg) BaseType() byte { return m.Header.Type &^ AtlocBit }

// WlcmMsgSize is the wire size of WlcmMsg.
const WlcmMsgSize = DhtMsgSize + NodeDescrSize // 20

// WlcmMsg extends DhtMsg with the accepting node's current predecessor,
// which becomes the joiner's new predecessor.
type WlcmMsg struct {
	DhtMsg
	Predecessor NodeDescr
}

// imgNameLen is the fixed length of the name field in SrchMsg and IQRY.
const imgNameLen = 256

// SrchMsgSize is the wire size of SrchMsg.
const SrchMsgSize = DhtMsgSize + 1 + imgNameLen // 269

// SrchMsg extends DhtMsg with the image identifier and filename being
// searched for.
type SrchMsg struct {
	DhtMsg
	ImgID domain.ID
	Name  string
}

// NetimgHeaderSize is the wire size of NetimgHeader.
const NetimgHeaderSize = 2

// NetimgHeader is the {vers, type} prefix of image-client packets.
type NetimgHeader struct {
	Vers byte
	Type byte
}

// IqrySize is the wire size of an IQRY packet.
const IqrySize = NetimgHeaderSize + imgNameLen

// Iqry is an image-client query: a filename to resolve.
type Iqry struct {
	Header NetimgHeader
	Name   string
}

// ImsgSize is the wire size of an IMSG packet, not counting any pixel
// payload that follows it when ImFound == ImgFound.
const ImsgSize = NetimgHeaderSize + 1 + 1 + 2 + 2 + 2 + 1 + 1

// Imsg is the reply to an image-client query.
type Imsg struct {
	Header NetimgHeader
	ImFound byte
	Depth   byte
	Format  uint16
	Width   uint16
	Height  uint16
	Adepth  byte
	Rle     byte
}

// PixelLen returns the number of raw pixel bytes that must follow this
// IMSG on the wire when ImFound == ImgFound.
func (m Imsg) PixelLen() int {
	return int(m.Width) * int(m.Height) * int(m.Depth)
}
