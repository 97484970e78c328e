// imgclient is a thin demonstration client for a node's image receiver:
// it sends one IQRY for a named image and reports FOUND/NFOUND/BUSY,
// writing any received pixel bytes to disk on success.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"KoordeDHT/internal/transport"
	"KoordeDHT/internal/wire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4001", "address of a node's image receiver")
	name := flag.String("name", "", "image filename to query")
	out := flag.String("out", "", "path to write raw pixel bytes on FOUND (default: <name>.raw)")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: imgclient -addr host:port -name <image>")
		os.Exit(2)
	}

	conn, err := transport.Dial(*addr)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()

	iqry := wire.Iqry{
		Header: wire.NetimgHeader{Vers: wire.Vers, Type: wire.NetimgTypeIqry},
		Name:   *name,
	}
	if err := transport.WriteAll(conn, wire.EncodeIqry(iqry)); err != nil {
		log.Fatalf("write iqry: %v", err)
	}

	h, err := wire.ReadNetimgHeader(conn)
	if err != nil {
		log.Fatalf("read imsg header: %v", err)
	}
	m, err := wire.DecodeImsgBody(conn, h)
	if err != nil {
		log.Fatalf("decode imsg: %v", err)
	}

	switch m.ImFound {
	case wire.ImgNotFound:
		fmt.Printf("%s: image not found.\n", *name)
	case wire.ImgBusy:
		fmt.Printf("%s: node busy, try again later.\n", *name)
	case wire.ImgFound:
		pixels, err := transport.ReadExact(conn, m.PixelLen())
		if err != nil {
			log.Fatalf("read pixels: %v", err)
		}
		outPath := *out
		if outPath == "" {
			outPath = *name + ".raw"
		}
		if err := os.WriteFile(outPath, pixels, 0o644); err != nil {
			log.Fatalf("write %s: %v", outPath, err)
		}
		fmt.Printf("%s: found, %dx%d depth=%d, wrote %d bytes to %s\n",
			*name, m.Width, m.Height, m.Depth, len(pixels), outPath)
	default:
		fmt.Printf("%s: unexpected im_found byte 0x%02x\n", *name, m.ImFound)
	}
}
