package node

import "go.opentelemetry.io/otel"

// tracerName identifies this package's spans to whatever exporter
// internal/telemetry wired up (stdouttrace, when tracing is enabled).
// Spans opened here never cross the wire: they cover one node's local
// handling of a protocol message, not the full ring traversal.
const tracerName = "koorde/node"

var tracer = otel.Tracer(tracerName)
