package ui

import (
	"context"
	"net/url"
	"strings"
)

// Severity grades a user-facing notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier shows a message to the user. Implementations are fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string)
}

// Navigator switches the active view and reports where the user currently is.
type Navigator interface {
	NavigateTo(ctx context.Context, to Location)
	CurrentLocation() Location
}

// TitleSetter updates the document or window title.
type TitleSetter interface {
	SetTitle(title string)
}

// Location is a navigable destination: a path plus optional query.
type Location struct {
	Path  string
	Query url.Values
}

// ParseLocation splits a full path such as "/ledger/list?page=2" into a Location.
// An empty input yields "/".
func ParseLocation(fullPath string) Location {
	if fullPath == "" {
		return Location{Path: "/"}
	}
	path, rawQuery, _ := strings.Cut(fullPath, "?")
	if path == "" {
		path = "/"
	}
	loc := Location{Path: path}
	if rawQuery != "" {
		if q, err := url.ParseQuery(rawQuery); err == nil && len(q) > 0 {
			loc.Query = q
		}
	}
	return loc
}

// FullPath renders the location back to "path?query".
func (l Location) FullPath() string {
	path := l.Path
	if path == "" {
		path = "/"
	}
	if len(l.Query) == 0 {
		return path
	}
	return path + "?" + l.Query.Encode()
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Severity, string) {}

// NopTitleSetter discards title updates.
type NopTitleSetter struct{}

func (NopTitleSetter) SetTitle(string) {}
