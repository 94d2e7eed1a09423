// Package ledgergate is the client-side gateway between a ledger UI and the
// remote ledger API.
//
// A [Client] owns three collaborating parts:
//
//   - a [session.Store] holding the bearer credential and identity, mirrored
//     to durable storage;
//   - a [pipeline.Pipeline] that authenticates every call and classifies its
//     outcome, ending the session on 401;
//   - a [guard.Guard] that decides, before each view change, whether the
//     session may reach the destination.
//
// Construct a Client with [New]...[Builder.Build], then call
// [Client.Restore] once to load a persisted session.
//
// # Architecture boundaries
//
// This package wires the parts together and adds metrics and audit. Session
// semantics live in package session, outcome classification in package
// pipeline, and navigation rules in package guard.
//
// # What this package must NOT do
//
//   - Perform I/O in [Builder.Build]. Storage is opened by the caller
//     (see [OpenStorage]) and read by [Client.Restore].
//   - Retry calls or refresh credentials.
//   - Render notifications or views. Those are host capabilities (package ui).
package ledgergate
