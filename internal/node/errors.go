package node

import "fmt"

// ErrUnexpectedType is a fatal protocol error: a DHT message arrived with
// a type byte the ring/lookup engines do not handle. The orchestrator
// treats this the same way as a bad protocol version: tear down and exit.
type ErrUnexpectedType struct{ Got byte }

func (e ErrUnexpectedType) Error() string {
	return fmt.Sprintf("node: unexpected dht message type 0x%02x", e.Got)
}
