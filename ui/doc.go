// Package ui declares the side-effect capabilities the gateway consumes from
// the host application: user notifications, navigation, and the page title.
//
// # Architecture boundaries
//
// This package owns only port interfaces and small value types. Rendering a
// toast, switching a view, or printing to a terminal is the host's job.
//
// # What this package must NOT do
//
//   - Import session, pipeline, guard, or the root package.
//   - Perform I/O.
package ui
