package node

import (
	"context"
	"net"

	"KoordeDHT/internal/eventloop"
	"KoordeDHT/internal/logger"
)

// SourceDHT and SourceImage tag the two listeners a node watches.
const (
	SourceDHT   eventloop.Source = "dht"
	SourceImage eventloop.Source = "image"
)

// Run drives the node's single event-loop goroutine: it watches the DHT
// and image-client listeners and dispatches every accepted connection to
// the matching protocol handler until ctx is canceled or a fatal protocol
// error occurs (bad version, unexpected type byte). A REID mid-run swaps
// the DHT listener in place without disturbing the image-client side.
func (n *Node) Run(ctx context.Context, dhtLn, imageLn net.Listener, bootstrapAddr string, relisten RelistenFunc) error {
	loop := eventloop.New(n.lgr, 32)
	defer loop.Stop()

	loop.Watch(SourceDHT, dhtLn)
	loop.Watch(SourceImage, imageLn)
	currentDHT := dhtLn

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-loop.Events():
			switch ev.Source {
			case SourceDHT:
				newLn, err := n.HandleDHTConn(ev.Conn, bootstrapAddr, relisten)
				if err != nil {
					n.lgr.Error("fatal protocol error, stopping event loop", logger.F("err", err))
					return err
				}
				if newLn != nil {
					currentDHT.Close()
					currentDHT = newLn
					loop.Watch(SourceDHT, newLn)
				}
			case SourceImage:
				n.HandleImageConn(ev.Conn)
			}
		}
	}
}
