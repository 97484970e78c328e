package node

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/imagestore"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/transport"
	"KoordeDHT/internal/wire"
)

// handleSrch processes an inbound SRCH or SRCH_ATLOC. A local hit replies
// RPLY to the originating proxy; a confirmed local miss (we own the id
// but don't have the file) replies MISS; an ATLOC mismatch redirects with
// REDRT; otherwise the search is forwarded deeper into the ring. It opens
// a local span covering the whole handling, which ForwardSearch nests
// under when the search forwards deeper into the ring.
func (n *Node) handleSrch(ctx context.Context, conn net.Conn, msg wire.SrchMsg, atloc bool) {
	ctx = ctxutil.EnsureTraceID(ctx, n.self.ID)
	ctx, span := tracer.Start(ctx, "HandleSrch", trace.WithAttributes(
		attribute.String("koorde.trace_id", ctxutil.TraceIDFromContext(ctx)),
		attribute.String("koorde.image_name", msg.Name),
		attribute.Bool("koorde.atloc", atloc),
	))
	defer span.End()

	result := n.store.Query(msg.Name)
	pred := n.rt.Predecessor()
	originator := msg.Node.Node()

	switch {
	case result == imagestore.Hit:
		conn.Close()
		n.replyRemote(originator, wire.TypeRply, msg.ImgID, msg.Name)

	case domain.InRange(msg.ImgID, pred.ID, n.self.ID):
		conn.Close()
		n.replyRemote(originator, wire.TypeMiss, msg.ImgID, msg.Name)

	case atloc:
		n.writeRedrt(conn)
		conn.Close()

	default:
		conn.Close()
		if msg.TTL <= 1 {
			n.lgr.Debug("srch: ttl expired, dropping", logger.F("name", msg.Name))
			return
		}
		n.forwardSearch(ctxutil.IncHops(ctx), msg)
	}
}

// replyRemote dials the originating DHT proxy and sends a one-shot RPLY
// or MISS carrying the image descriptor.
func (n *Node) replyRemote(addr domain.Node, typ byte, imgID domain.ID, name string) {
	conn, err := transport.Dial(addr.Addr())
	if err != nil {
		n.lgr.Error("srch: failed to dial originator", logger.FNode("originator", addr), logger.F("err", err))
		return
	}
	defer conn.Close()
	m := wire.SrchMsg{
		DhtMsg: wire.DhtMsg{
			Header: wire.Header{Vers: wire.Vers, Type: typ},
			Node:   wire.NodeDescrOf(n.self),
		},
		ImgID: imgID,
		Name:  name,
	}
	if err := transport.WriteAll(conn, wire.EncodeSrchMsg(m)); err != nil {
		n.lgr.Error("srch: failed to send reply", logger.F("type", fmt.Sprintf("0x%02x", typ)), logger.F("err", err))
	}
}

// forwardSearch forwards a SRCH (or SRCH_ATLOC) toward the finger
// selected by find_for_forward. Symmetric to forwardJoin: TTL is
// decremented before the message goes out, and an ATLOC forward blocks
// for a REDRT-or-close reply on the same connection. Each attempt
// (including REDRT retries) opens its own span, tagged with the hop
// count carried in ctx.
func (n *Node) forwardSearch(ctx context.Context, msg wire.SrchMsg) {
	ctx = ctxutil.EnsureTraceID(ctx, n.self.ID)
	ctx, span := tracer.Start(ctx, "ForwardSearch", trace.WithAttributes(
		attribute.String("koorde.trace_id", ctxutil.TraceIDFromContext(ctx)),
		attribute.String("koorde.image_name", msg.Name),
		attribute.Int("koorde.hops", ctxutil.HopsFromContext(ctx)),
	))
	defer span.End()

	if msg.TTL <= 1 {
		n.lgr.Debug("forward_search: ttl expired, dropping", logger.F("name", msg.Name))
		return
	}

	idx := n.rt.FindForForward(msg.ImgID)
	atloc := n.rt.ExpectToFind(msg.ImgID, idx)
	target := n.rt.Successor(idx)

	out := msg
	out.TTL = msg.TTL - 1
	out.Header = wire.Header{Vers: wire.Vers, Type: wire.TypeSrch}
	if atloc {
		out.Header.Type |= wire.AtlocBit
	}

	conn, err := transport.Dial(target.Addr())
	if err != nil {
		n.lgr.Error("forward_search: dial failed", logger.FNode("target", target), logger.F("err", err))
		return
	}
	defer conn.Close()
	if err := transport.WriteAll(conn, wire.EncodeSrchMsg(out)); err != nil {
		n.lgr.Error("forward_search: write failed", logger.FNode("target", target), logger.F("err", err))
		return
	}
	if !atloc {
		return
	}

	h, err := wire.ReadHeader(conn)
	if errors.Is(err, transport.ErrPrematureClose) {
		n.lgr.Debug("forward_search: peer closed, search accepted", logger.F("name", msg.Name))
		return
	}
	if err != nil {
		n.lgr.Error("forward_search: atloc read failed", logger.F("err", err))
		return
	}
	if h.Type != wire.TypeRedrt {
		n.lgr.Error("forward_search: unexpected atloc reply", logger.F("type", fmt.Sprintf("0x%02x", h.Type)))
		return
	}
	redrt, err := wire.DecodeDhtMsgBody(conn, h)
	if err != nil {
		n.lgr.Error("forward_search: failed to decode redrt", logger.F("err", err))
		return
	}
	n.rt.Update(idx, redrt.Node.Node())
	n.forwardSearch(ctxutil.IncHops(ctx), out)
}

// handleRply processes an inbound RPLY: the replying node confirmed it
// holds the image, so it is cached locally and streamed to the waiting
// image client.
func (n *Node) handleRply(conn net.Conn, msg wire.SrchMsg) {
	conn.Close()
	n.store.Cache(msg.Name)
	n.replyHit(msg.Name)
}

// handleMiss processes an inbound MISS: the ring confirmed the image is
// absent, so the waiting image client is told NFOUND.
func (n *Node) handleMiss(conn net.Conn, msg wire.SrchMsg) {
	conn.Close()
	n.replyNotFound()
}
