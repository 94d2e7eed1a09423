package internaldefs

import (
	"github.com/ledgerops/ledgergate"
)

// Label is one constant label on a counter series.
type Label struct {
	Key   string
	Value string
}

// CounterDef maps one ledgergate counter to an exported series. Series
// sharing a Family name are rendered as one labeled metric.
type CounterDef struct {
	ID     ledgergate.MetricID
	Family string
	Help   string
	Label  Label
}

type HistogramDef struct {
	ID   ledgergate.MetricID
	Name string
	Help string
}

const (
	FamilyCalls      = "ledgergate_calls_total"
	FamilySessions   = "ledgergate_session_events_total"
	FamilyNavigation = "ledgergate_navigation_decisions_total"
	FamilyStorage    = "ledgergate_storage_failures_total"
	AuditDropped     = "ledgergate_audit_dropped_total"
)

const (
	helpCalls      = "API calls by outcome."
	helpSessions   = "Session lifecycle events."
	helpNavigation = "Navigation guard decisions."
)

func call(id ledgergate.MetricID, outcome string) CounterDef {
	return CounterDef{ID: id, Family: FamilyCalls, Help: helpCalls, Label: Label{"outcome", outcome}}
}

func sessionEvent(id ledgergate.MetricID, event string) CounterDef {
	return CounterDef{ID: id, Family: FamilySessions, Help: helpSessions, Label: Label{"event", event}}
}

func decision(id ledgergate.MetricID, kind string) CounterDef {
	return CounterDef{ID: id, Family: FamilyNavigation, Help: helpNavigation, Label: Label{"decision", kind}}
}

// CounterDefs lists every exported counter, grouped by family.
var CounterDefs = []CounterDef{
	call(ledgergate.MetricCallSuccess, "success"),
	call(ledgergate.MetricCallUnauthenticated, "unauthenticated"),
	call(ledgergate.MetricCallForbidden, "forbidden"),
	call(ledgergate.MetricCallNotFound, "not_found"),
	call(ledgergate.MetricCallValidationError, "validation_error"),
	call(ledgergate.MetricCallServerError, "server_error"),
	call(ledgergate.MetricCallUnexpectedStatus, "unexpected_status"),
	call(ledgergate.MetricCallNetworkError, "network_error"),
	call(ledgergate.MetricCallConfigError, "config_error"),
	call(ledgergate.MetricCallLogicalFailure, "logical_failure"),

	sessionEvent(ledgergate.MetricSessionLogin, "login"),
	sessionEvent(ledgergate.MetricSessionLoginFailure, "login_failure"),
	sessionEvent(ledgergate.MetricSessionLogout, "logout"),
	sessionEvent(ledgergate.MetricSessionExpired, "expired"),
	sessionEvent(ledgergate.MetricSessionRestored, "restored"),
	sessionEvent(ledgergate.MetricSessionRestoreFailure, "restore_failure"),

	decision(ledgergate.MetricNavAllow, "allow"),
	decision(ledgergate.MetricNavRedirectToLogin, "redirect_to_login"),
	decision(ledgergate.MetricNavDeny, "deny"),
	decision(ledgergate.MetricNavRedirectToHome, "redirect_to_home"),
	decision(ledgergate.MetricNavRedirect, "redirect"),

	{ID: ledgergate.MetricStorageFailure, Family: FamilyStorage, Help: "Failed session storage writes."},
}

var HistogramDefs = []HistogramDef{
	{ID: ledgergate.MetricCallLatency, Name: "ledgergate_call_latency_seconds", Help: "API call latency, including session handling."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight latency
// buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as metric name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// CumulativeBuckets pads or truncates raw to eight buckets and accumulates
// them, as both exporters report cumulative counts.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(out); i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
