package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/routingtable"
	"KoordeDHT/internal/transport"
	"KoordeDHT/internal/wire"
)

// RelistenFunc opens a fresh DHT receiver and reports the node identity
// derived from its address. HandleReid calls this to acquire a new
// ephemeral port — and therefore a new id — after an id collision.
type RelistenFunc func() (net.Listener, domain.Node, error)

// HandleDHTConn reads the header of one accepted DHT connection and
// dispatches to the matching ring or lookup handler. It returns a non-nil
// listener only when a REID exchange replaced the DHT receiver, in which
// case the caller must swap its accept loop onto it. A non-nil error is
// always fatal (bad protocol version or unknown type byte): the caller
// should stop the event loop and let the process exit nonzero.
func (n *Node) HandleDHTConn(conn net.Conn, bootstrapAddr string, relisten RelistenFunc) (net.Listener, error) {
	h, err := wire.ReadHeader(conn)
	if err != nil {
		conn.Close()
		var badVers wire.ErrBadVersion
		if errors.As(err, &badVers) {
			return nil, err
		}
		n.lgr.Error("dht: failed to read header", logger.F("err", err))
		return nil, nil
	}

	base := h.Type &^ wire.AtlocBit
	atloc := h.Type&wire.AtlocBit != 0

	switch base {
	case wire.TypeJoin:
		msg, err := wire.DecodeDhtMsgBody(conn, h)
		if err != nil {
			conn.Close()
			n.lgr.Error("join: failed to decode", logger.F("err", err))
			return nil, nil
		}
		ctx, _ := ctxutil.NewContext(ctxutil.WithTrace(n.self.ID), ctxutil.WithHops())
		n.handleJoin(ctx, conn, msg, atloc)
		return nil, nil

	case wire.TypeWlcm:
		msg, err := wire.DecodeWlcmMsgBody(conn, h)
		if err != nil {
			conn.Close()
			n.lgr.Error("wlcm: failed to decode", logger.F("err", err))
			return nil, nil
		}
		n.handleWlcm(conn, msg)
		return nil, nil

	case wire.TypeReid:
		msg, err := wire.DecodeDhtMsgBody(conn, h)
		if err != nil {
			conn.Close()
			n.lgr.Error("reid: failed to decode", logger.F("err", err))
			return nil, nil
		}
		return n.HandleReid(conn, msg, bootstrapAddr, relisten)

	case wire.TypeSrch:
		msg, err := wire.DecodeSrchMsgBody(conn, h)
		if err != nil {
			conn.Close()
			n.lgr.Error("srch: failed to decode", logger.F("err", err))
			return nil, nil
		}
		ctx, _ := ctxutil.NewContext(ctxutil.WithTrace(n.self.ID), ctxutil.WithHops())
		n.handleSrch(ctx, conn, msg, atloc)
		return nil, nil

	case wire.TypeRply:
		msg, err := wire.DecodeSrchMsgBody(conn, h)
		if err != nil {
			conn.Close()
			n.lgr.Error("rply: failed to decode", logger.F("err", err))
			return nil, nil
		}
		n.handleRply(conn, msg)
		return nil, nil

	case wire.TypeMiss:
		msg, err := wire.DecodeSrchMsgBody(conn, h)
		if err != nil {
			conn.Close()
			n.lgr.Error("miss: failed to decode", logger.F("err", err))
			return nil, nil
		}
		n.handleMiss(conn, msg)
		return nil, nil

	default:
		conn.Close()
		return nil, ErrUnexpectedType{Got: h.Type}
	}
}

// SendJoin dials bootstrapAddr and emits this node's initial JOIN,
// writing and closing without waiting for a reply (the welcome, if any,
// arrives later as an independent inbound WLCM connection).
func (n *Node) SendJoin(bootstrapAddr string) error {
	conn, err := transport.Dial(bootstrapAddr)
	if err != nil {
		return fmt.Errorf("join: dial bootstrap %s: %w", bootstrapAddr, err)
	}
	defer conn.Close()
	m := wire.DhtMsg{
		Header: wire.Header{Vers: wire.Vers, Type: wire.TypeJoin},
		TTL:    n.joinTTL,
		Node:   wire.NodeDescrOf(n.self),
	}
	n.lgr.Info("join: sent to bootstrap peer", logger.F("peer", bootstrapAddr), logger.FNode("self", n.self))
	return transport.WriteAll(conn, wire.EncodeDhtMsg(m))
}

// handleJoin processes an inbound JOIN or JOIN_ATLOC. The four cases
// mirror the ring protocol engine exactly: id collision, local ownership,
// a mistaken ATLOC expectation, and forwarding. It opens a local span
// covering the whole handling, which ForwardJoin nests under when the
// join forwards deeper into the ring.
func (n *Node) handleJoin(ctx context.Context, conn net.Conn, msg wire.DhtMsg, atloc bool) {
	ctx = ctxutil.EnsureTraceID(ctx, n.self.ID)
	ctx, span := tracer.Start(ctx, "HandleJoin", trace.WithAttributes(
		attribute.String("koorde.trace_id", ctxutil.TraceIDFromContext(ctx)),
		attribute.Int("koorde.joiner_id", int(msg.Node.ID)),
		attribute.Bool("koorde.atloc", atloc),
	))
	defer span.End()

	joiner := msg.Node.Node()
	pred := n.rt.Predecessor()

	switch {
	case joiner.ID == n.self.ID || joiner.ID == pred.ID:
		conn.Close()
		n.lgr.Warn("join: id collision, sending reid", logger.FNode("joiner", joiner))
		n.sendReid(joiner)

	case domain.InRange(joiner.ID, pred.ID, n.self.ID):
		conn.Close()
		wasAlone := n.rt.Successor(0).ID == n.self.ID
		if err := n.sendWlcm(joiner, pred); err != nil {
			n.lgr.Error("join: failed to send wlcm", logger.FNode("joiner", joiner), logger.F("err", err))
			return
		}
		n.rt.SetPredecessor(joiner)
		if wasAlone {
			n.rt.SetSuccessor(0, joiner)
			n.rt.FixUp(0)
		}
		n.rt.FixDown(routingtable.PredecessorIdx)
		n.reloadStore()
		n.lgr.Info("join: accepted as owner", logger.FNode("joiner", joiner))

	case atloc:
		n.lgr.Debug("join_atloc: not owner, redirecting", logger.FNode("joiner", joiner))
		n.writeRedrt(conn)
		conn.Close()

	default:
		conn.Close()
		if msg.TTL <= 1 {
			n.lgr.Debug("join: ttl expired, dropping", logger.FNode("joiner", joiner))
			return
		}
		n.forwardJoin(ctxutil.IncHops(ctx), msg)
	}
}

// forwardJoin forwards a JOIN (or JOIN_ATLOC) toward the finger selected
// by find_for_forward, decrementing TTL before it goes out — a TTL that
// reaches zero here is silently dropped. When the forward is ATLOC, it
// blocks on the same connection for either a REDRT reply (updates the
// finger and retries) or the peer's close (implicit acceptance). Each
// attempt (including REDRT retries) opens its own span, tagged with the
// hop count carried in ctx.
func (n *Node) forwardJoin(ctx context.Context, msg wire.DhtMsg) {
	ctx = ctxutil.EnsureTraceID(ctx, n.self.ID)
	ctx, span := tracer.Start(ctx, "ForwardJoin", trace.WithAttributes(
		attribute.String("koorde.trace_id", ctxutil.TraceIDFromContext(ctx)),
		attribute.Int("koorde.joiner_id", int(msg.Node.ID)),
		attribute.Int("koorde.hops", ctxutil.HopsFromContext(ctx)),
	))
	defer span.End()

	if msg.TTL <= 1 {
		n.lgr.Debug("forward_join: ttl expired, dropping", logger.F("node", msg.Node.ID.String()))
		return
	}

	idx := n.rt.FindForForward(msg.Node.ID)
	atloc := n.rt.ExpectToFind(msg.Node.ID, idx)
	target := n.rt.Successor(idx)

	out := msg
	out.TTL = msg.TTL - 1
	out.Header = wire.Header{Vers: wire.Vers, Type: wire.TypeJoin}
	if atloc {
		out.Header.Type |= wire.AtlocBit
	}

	conn, err := transport.Dial(target.Addr())
	if err != nil {
		n.lgr.Error("forward_join: dial failed", logger.FNode("target", target), logger.F("err", err))
		return
	}
	defer conn.Close()
	if err := transport.WriteAll(conn, wire.EncodeDhtMsg(out)); err != nil {
		n.lgr.Error("forward_join: write failed", logger.FNode("target", target), logger.F("err", err))
		return
	}
	if !atloc {
		return
	}

	h, err := wire.ReadHeader(conn)
	if errors.Is(err, transport.ErrPrematureClose) {
		n.lgr.Debug("forward_join: peer closed, join accepted", logger.F("node", msg.Node.ID.String()))
		return
	}
	if err != nil {
		n.lgr.Error("forward_join: atloc read failed", logger.F("err", err))
		return
	}
	if h.Type != wire.TypeRedrt {
		n.lgr.Error("forward_join: unexpected atloc reply", logger.F("type", fmt.Sprintf("0x%02x", h.Type)))
		return
	}
	redrt, err := wire.DecodeDhtMsgBody(conn, h)
	if err != nil {
		n.lgr.Error("forward_join: failed to decode redrt", logger.F("err", err))
		return
	}
	n.rt.Update(idx, redrt.Node.Node())
	n.forwardJoin(ctxutil.IncHops(ctx), out)
}

// handleWlcm processes the WLCM reply to this node's own JOIN: it adopts
// the sender as its new successor and the WLCM's second descriptor as its
// new predecessor.
func (n *Node) handleWlcm(conn net.Conn, msg wire.WlcmMsg) {
	conn.Close()
	sender := msg.Node.Node()
	newPred := msg.Predecessor.Node()

	n.rt.SetPredecessor(newPred)
	n.reloadStore()
	n.rt.SetSuccessor(0, sender)
	n.rt.FixUp(0)
	n.rt.FixDown(routingtable.PredecessorIdx)

	n.lgr.Info("wlcm: joined ring", logger.FNode("successor", sender), logger.FNode("predecessor", newPred))
}

// HandleReid processes an id collision notice: it discards the current
// DHT receiver, acquires a fresh one (and therefore a new id) via
// relisten, resets the finger table around the new identity, and retries
// the original JOIN against bootstrapAddr. The returned listener replaces
// the caller's DHT accept loop.
func (n *Node) HandleReid(conn net.Conn, msg wire.DhtMsg, bootstrapAddr string, relisten RelistenFunc) (net.Listener, error) {
	conn.Close()
	n.lgr.Warn("reid: id collision, regenerating identity", logger.FNode("from", msg.Node.Node()))

	ln, newSelf, err := relisten()
	if err != nil {
		return nil, fmt.Errorf("reid: failed to acquire new receiver: %w", err)
	}
	n.Rebind(newSelf)

	if err := n.SendJoin(bootstrapAddr); err != nil {
		n.lgr.Error("reid: failed to resend join", logger.F("err", err))
	}
	return ln, nil
}

// sendReid opens a fresh connection directly to the joining node's
// advertised address and tells it to regenerate its identifier.
func (n *Node) sendReid(joiner domain.Node) {
	conn, err := transport.Dial(joiner.Addr())
	if err != nil {
		n.lgr.Error("join: failed to dial joiner for reid", logger.FNode("joiner", joiner), logger.F("err", err))
		return
	}
	defer conn.Close()
	m := wire.DhtMsg{
		Header: wire.Header{Vers: wire.Vers, Type: wire.TypeReid},
		Node:   wire.NodeDescrOf(n.self),
	}
	if err := transport.WriteAll(conn, wire.EncodeDhtMsg(m)); err != nil {
		n.lgr.Error("join: failed to send reid", logger.FNode("joiner", joiner), logger.F("err", err))
	}
}

// sendWlcm opens a fresh connection to the joining node's advertised
// address and welcomes it, carrying self as its new successor and pred as
// its new predecessor.
func (n *Node) sendWlcm(joiner, pred domain.Node) error {
	conn, err := transport.Dial(joiner.Addr())
	if err != nil {
		return fmt.Errorf("dial joiner %s: %w", joiner.Addr(), err)
	}
	defer conn.Close()
	m := wire.WlcmMsg{
		DhtMsg: wire.DhtMsg{
			Header: wire.Header{Vers: wire.Vers, Type: wire.TypeWlcm},
			Node:   wire.NodeDescrOf(n.self),
		},
		Predecessor: wire.NodeDescrOf(pred),
	}
	return transport.WriteAll(conn, wire.EncodeWlcmMsg(m))
}

// writeRedrt writes a REDRT carrying this node's current predecessor onto
// an already-open connection, used by the ATLOC-mismatch branches of both
// the join and search handlers.
func (n *Node) writeRedrt(w io.Writer) {
	m := wire.DhtMsg{
		Header: wire.Header{Vers: wire.Vers, Type: wire.TypeRedrt},
		Node:   wire.NodeDescrOf(n.rt.Predecessor()),
	}
	if err := transport.WriteAll(w, wire.EncodeDhtMsg(m)); err != nil {
		n.lgr.Error("failed to write redrt", logger.F("err", err))
	}
}
