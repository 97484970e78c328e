package node

import (
	"context"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/imagestore"
	"KoordeDHT/internal/imgfile"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/transport"
	"KoordeDHT/internal/wire"
)

// HandleImageConn services one accepted connection on the image-client
// receiver: reads an IQRY and either resolves it immediately (Busy
// rejection, local hit, local miss) or starts a ring search and parks the
// client connection in n.pending until an RPLY or MISS arrives.
func (n *Node) HandleImageConn(conn net.Conn) {
	h, err := wire.ReadNetimgHeader(conn)
	if err != nil {
		conn.Close()
		n.lgr.Error("iqry: failed to read header", logger.F("err", err))
		return
	}
	if h.Type != wire.NetimgTypeIqry {
		conn.Close()
		n.lgr.Error("iqry: unexpected type", logger.F("type", h.Type))
		return
	}
	iqry, err := wire.DecodeIqryBody(conn, h)
	if err != nil {
		conn.Close()
		n.lgr.Error("iqry: failed to decode", logger.F("err", err))
		return
	}

	if n.Busy() {
		n.lgr.Debug("iqry: busy, rejecting", logger.F("name", iqry.Name))
		n.sendImsg(conn, wire.Imsg{
			Header:  wire.NetimgHeader{Vers: wire.Vers, Type: wire.NetimgTypeImsg},
			ImFound: wire.ImgBusy,
		})
		conn.Close()
		return
	}

	n.pending = &pendingQuery{conn: conn, name: iqry.Name}
	n.lgr.Debug("iqry: accepted, now busy", logger.F("name", iqry.Name))
	ctx, _ := ctxutil.NewContext(ctxutil.WithTrace(n.self.ID), ctxutil.WithHops())
	n.resolveLocalOrForward(ctx, iqry.Name)
}

// resolveLocalOrForward runs the local-resolution step of the lookup
// protocol engine for the pending query: a bloom-filter hit answers
// immediately, a confirmed local miss answers NFOUND immediately,
// otherwise a SRCH is forwarded into the ring. It opens a local span
// covering the whole resolution, which ForwardSearch nests under when
// the query isn't resolved locally.
func (n *Node) resolveLocalOrForward(ctx context.Context, name string) {
	ctx = ctxutil.EnsureTraceID(ctx, n.self.ID)
	ctx, span := tracer.Start(ctx, "ImageQueryResolve", trace.WithAttributes(
		attribute.String("koorde.trace_id", ctxutil.TraceIDFromContext(ctx)),
		attribute.String("koorde.image_name", name),
	))
	defer span.End()

	if n.store.Query(name) == imagestore.Hit {
		n.replyHit(name)
		return
	}

	id := domain.DeriveImageID(name)
	pred := n.rt.Predecessor()
	if domain.InRange(id, pred.ID, n.self.ID) {
		n.replyNotFound()
		return
	}

	msg := wire.SrchMsg{
		DhtMsg: wire.DhtMsg{
			Header: wire.Header{Vers: wire.Vers, Type: wire.TypeSrch},
			TTL:    n.searchTTL,
			Node:   wire.NodeDescrOf(n.self),
		},
		ImgID: id,
		Name:  name,
	}
	n.forwardSearch(ctx, msg)
}

// replyHit loads the named image from disk and streams it to the pending
// client, returning the state machine to Idle. A load failure is treated
// like a miss, per the error-handling taxonomy.
func (n *Node) replyHit(name string) {
	q := n.pending
	n.pending = nil
	if q == nil {
		return
	}

	img, err := imgfile.Load(n.store.ImagePath(name))
	if err != nil {
		n.lgr.Warn("image load failed on hit, reporting not found",
			logger.F("name", name), logger.F("err", err))
		n.sendImsg(q.conn, wire.Imsg{
			Header:  wire.NetimgHeader{Vers: wire.Vers, Type: wire.NetimgTypeImsg},
			ImFound: wire.ImgNotFound,
		})
		q.conn.Close()
		return
	}

	m := wire.Imsg{
		Header:  wire.NetimgHeader{Vers: wire.Vers, Type: wire.NetimgTypeImsg},
		ImFound: wire.ImgFound,
		Depth:   byte(img.Depth),
		Format:  img.Format,
		Width:   uint16(img.Width),
		Height:  uint16(img.Height),
	}
	n.sendImsg(q.conn, m)
	if err := transport.WriteAll(q.conn, img.Pixels); err != nil {
		n.lgr.Error("failed to write pixel payload", logger.F("name", name), logger.F("err", err))
	}
	q.conn.Close()
	n.lgr.Info("iqry: served image, back to idle", logger.F("name", name))
}

// replyNotFound answers the pending client with NFOUND and returns the
// state machine to Idle.
func (n *Node) replyNotFound() {
	q := n.pending
	n.pending = nil
	if q == nil {
		return
	}
	n.sendImsg(q.conn, wire.Imsg{
		Header:  wire.NetimgHeader{Vers: wire.Vers, Type: wire.NetimgTypeImsg},
		ImFound: wire.ImgNotFound,
	})
	q.conn.Close()
	n.lgr.Info("iqry: not found, back to idle", logger.F("name", q.name))
}

func (n *Node) sendImsg(conn net.Conn, m wire.Imsg) {
	if err := transport.WriteAll(conn, wire.EncodeImsg(m)); err != nil {
		n.lgr.Error("failed to write imsg", logger.F("err", err))
	}
}
