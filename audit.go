package ledgergate

import (
	"io"
	"log/slog"

	"github.com/ledgerops/ledgergate/internal/audit"
)

// Audit types are defined in internal/audit and re-exported here.
type (
	AuditEvent     = audit.Event
	AuditSink      = audit.Sink
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	LogSink        = audit.LogSink
)

// Audit event types.
const (
	AuditLogin            = audit.TypeLogin
	AuditLogout           = audit.TypeLogout
	AuditRestore          = audit.TypeRestore
	AuditIdentityUpdate   = audit.TypeIdentityUpdate
	AuditSessionExpired   = audit.TypeSessionExpired
	AuditCallRejected     = audit.TypeCallRejected
	AuditNavigationDenied = audit.TypeNavigationDenied
	AuditLoginRequired    = audit.TypeLoginRequired
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewLogSink(l *slog.Logger) *LogSink {
	return audit.NewLogSink(l)
}
