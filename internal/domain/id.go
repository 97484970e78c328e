package domain

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// ID is a point on the 8-bit identifier ring Z/256Z.
type ID uint8

// String renders the identifier as a zero-padded hex byte, e.g. "0x4a".
func (id ID) String() string {
	return fmt.Sprintf("0x%02x", uint8(id))
}

// Fold reduces a wider hash value to an 8-bit ring identifier by taking
// its first byte, matching fold(x: u16) -> u8 = x mod 256 for the byte-sized
// inputs this package deals with.
func Fold(b byte) ID { return ID(b) }

// DeriveNodeID hashes port‖ipv4 (network byte order) with SHA-1 and folds
// the first byte of the digest onto the ring.
func DeriveNodeID(port uint16, ipv4 uint32) ID {
	var buf [6]byte
	binary.BigEndian.PutUint16(buf[0:2], port)
	binary.BigEndian.PutUint32(buf[2:6], ipv4)
	sum := sha1.Sum(buf[:])
	return Fold(sum[0])
}

// DeriveImageID hashes a filename with SHA-1 and folds the first byte of
// the digest onto the ring.
func DeriveImageID(name string) ID {
	sum := sha1.Sum([]byte(name))
	return Fold(sum[0])
}

// InRange reports whether x lies in the half-open modular interval (a, b]:
// walking the ring forward from a (exclusive) to b (inclusive) passes
// through x. When a == b every value is in range (the whole ring).
func InRange(x, a, b ID) bool {
	if a == b {
		return true
	}
	if a < b {
		return x > a && x <= b
	}
	// wraps around zero
	return x > a || x <= b
}
