package tracing

// Attribute keys.
const (
	AttrSessionID   = "session.id"
	AttrCheckID     = "check.id"
	AttrEventKind   = "event.kind"
	AttrDisposition = "route.disposition"
	AttrSourceKind  = "source.kind"
	AttrBatchID     = "batch.id"
)

// Span names.
const (
	SpanRoute     = "router.route"
	SpanStart     = "tracker.start_check"
	SpanBootstrap = "tracker.bootstrap"
	SpanDetail    = "tracker.load_detail"
	SpanCancel    = "tracker.cancel"
	SpanDelete    = "tracker.delete"
)
