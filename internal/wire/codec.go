package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/transport"
)

// ErrBadVersion is returned when a decoded header carries a version byte
// other than Vers. The DHT receiver treats it as fatal; the image-client
// receiver only logs it and closes the offending connection.
type ErrBadVersion struct{ Got byte }

func (e ErrBadVersion) Error() string {
	return fmt.Sprintf("wire: unsupported protocol version 0x%02x", e.Got)
}

// ErrUnexpectedType is returned when a decoded header carries a type byte
// the caller did not expect at this point in the protocol.
type ErrUnexpectedType struct{ Got byte }

func (e ErrUnexpectedType) Error() string {
	return fmt.Sprintf("wire: unexpected message type 0x%02x", e.Got)
}

func encodeNodeDescr(buf *bytes.Buffer, d NodeDescr) {
	buf.WriteByte(d.Rsvd)
	buf.WriteByte(byte(d.ID))
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], d.Port)
	buf.Write(p[:])
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], d.IPv4)
	buf.Write(a[:])
}

func decodeNodeDescr(b []byte) NodeDescr {
	return NodeDescr{
		Rsvd: b[0],
		ID:   domain.ID(b[1]),
		Port: binary.BigEndian.Uint16(b[2:4]),
		IPv4: binary.BigEndian.Uint32(b[4:8]),
	}
}

// ReadHeader reads the 2-byte header of an incoming DHT message, leaving
// the rest of the packet unread, and validates the version byte.
func ReadHeader(r io.Reader) (Header, error) {
	b, err := transport.ReadExact(r, HeaderSize)
	if err != nil {
		return Header{}, err
	}
	h := Header{Vers: b[0], Type: b[1]}
	if h.Vers != Vers {
		return h, ErrBadVersion{Got: h.Vers}
	}
	return h, nil
}

// EncodeDhtMsg serializes a DhtMsg to its 12-byte wire form.
func EncodeDhtMsg(m DhtMsg) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, DhtMsgSize))
	buf.WriteByte(m.Header.Vers)
	buf.WriteByte(m.Header.Type)
	var ttl [2]byte
	binary.BigEndian.PutUint16(ttl[:], m.TTL)
	buf.Write(ttl[:])
	encodeNodeDescr(buf, m.Node)
	return buf.Bytes()
}

// DecodeDhtMsgBody decodes the part of DhtMsg after an already-read
// Header: the TTL and node descriptor.
func DecodeDhtMsgBody(r io.Reader, h Header) (DhtMsg, error) {
	b, err := transport.ReadExact(r, DhtMsgSize-HeaderSize)
	if err != nil {
		return DhtMsg{}, err
	}
	return DhtMsg{
		Header: h,
		TTL:    binary.BigEndian.Uint16(b[0:2]),
		Node:   decodeNodeDescr(b[2:10]),
	}, nil
}

// EncodeWlcmMsg serializes a WlcmMsg to its 20-byte wire form.
func EncodeWlcmMsg(m WlcmMsg) []byte {
	buf := bytes.NewBuffer(EncodeDhtMsg(m.DhtMsg))
	encodeNodeDescr(buf, m.Predecessor)
	return buf.Bytes()
}

// DecodeWlcmMsgBody decodes the part of WlcmMsg after an already-read
// Header.
func DecodeWlcmMsgBody(r io.Reader, h Header) (WlcmMsg, error) {
	base, err := DecodeDhtMsgBody(r, h)
	if err != nil {
		return WlcmMsg{}, err
	}
	b, err := transport.ReadExact(r, NodeDescrSize)
	if err != nil {
		return WlcmMsg{}, err
	}
	return WlcmMsg{DhtMsg: base, Predecessor: decodeNodeDescr(b)}, nil
}

// EncodeSrchMsg serializes a SrchMsg to its 269-byte wire form. The name
// field is NUL-padded to 256 bytes; names longer than 256 bytes are
// truncated to fit.
func EncodeSrchMsg(m SrchMsg) []byte {
	buf := bytes.NewBuffer(EncodeDhtMsg(m.DhtMsg))
	buf.WriteByte(byte(m.ImgID))
	var name [imgNameLen]byte
	copy(name[:], m.Name)
	buf.Write(name[:])
	return buf.Bytes()
}

// DecodeSrchMsgBody decodes the part of SrchMsg after an already-read
// Header.
func DecodeSrchMsgBody(r io.Reader, h Header) (SrchMsg, error) {
	base, err := DecodeDhtMsgBody(r, h)
	if err != nil {
		return SrchMsg{}, err
	}
	b, err := transport.ReadExact(r, 1+imgNameLen)
	if err != nil {
		return SrchMsg{}, err
	}
	return SrchMsg{
		DhtMsg: base,
		ImgID:  domain.ID(b[0]),
		Name:   nameFromBytes(b[1:]),
	}, nil
}

func nameFromBytes(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// ReadNetimgHeader reads and validates an image-client header.
func ReadNetimgHeader(r io.Reader) (NetimgHeader, error) {
	b, err := transport.ReadExact(r, NetimgHeaderSize)
	if err != nil {
		return NetimgHeader{}, err
	}
	h := NetimgHeader{Vers: b[0], Type: b[1]}
	if h.Vers != Vers {
		return h, ErrBadVersion{Got: h.Vers}
	}
	return h, nil
}

// EncodeIqry serializes an Iqry to its wire form.
func EncodeIqry(m Iqry) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, IqrySize))
	buf.WriteByte(m.Header.Vers)
	buf.WriteByte(m.Header.Type)
	var name [imgNameLen]byte
	copy(name[:], m.Name)
	buf.Write(name[:])
	return buf.Bytes()
}

// DecodeIqryBody decodes the part of Iqry after an already-read header.
func DecodeIqryBody(r io.Reader, h NetimgHeader) (Iqry, error) {
	b, err := transport.ReadExact(r, imgNameLen)
	if err != nil {
		return Iqry{}, err
	}
	return Iqry{Header: h, Name: nameFromBytes(b)}, nil
}

// EncodeImsg serializes an Imsg header (without any trailing pixel
// payload) to its wire form.
func EncodeImsg(m Imsg) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, ImsgSize))
	buf.WriteByte(m.Header.Vers)
	buf.WriteByte(m.Header.Type)
	buf.WriteByte(m.ImFound)
	buf.WriteByte(m.Depth)
	var format, width, height [2]byte
	binary.BigEndian.PutUint16(format[:], m.Format)
	binary.BigEndian.PutUint16(width[:], m.Width)
	binary.BigEndian.PutUint16(height[:], m.Height)
	buf.Write(format[:])
	buf.Write(width[:])
	buf.Write(height[:])
	buf.WriteByte(m.Adepth)
	buf.WriteByte(m.Rle)
	return buf.Bytes()
}

// DecodeImsgBody decodes the part of Imsg after an already-read header.
func DecodeImsgBody(r io.Reader, h NetimgHeader) (Imsg, error) {
	b, err := transport.ReadExact(r, ImsgSize-NetimgHeaderSize)
	if err != nil {
		return Imsg{}, err
	}
	return Imsg{
		Header:  h,
		ImFound: b[0],
		Depth:   b[1],
		Format:  binary.BigEndian.Uint16(b[2:4]),
		Width:   binary.BigEndian.Uint16(b[4:6]),
		Height:  binary.BigEndian.Uint16(b[6:8]),
		Adepth:  b[8],
		Rle:     b[9],
	}, nil
}
