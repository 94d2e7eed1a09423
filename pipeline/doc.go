// Package pipeline sends calls to the remote ledger API and turns every
// response into exactly one [Outcome].
//
// # Request stage
//
// [Pipeline.Execute] attaches "Authorization: Bearer <credential>" when the
// session holds one, encodes the body as JSON, stamps an X-Request-ID, and adds
// a strictly increasing "_t" query parameter to GET and HEAD calls so that no
// intermediate cache can serve a stale read.
//
// # Response stage
//
// Every response is classified (see [Classify]) and reacted to:
//
//   - Unauthenticated ends the session it was sent with, navigates to the
//     login view (keeping the current view as the redirect target) and
//     notifies once, however many calls fail together.
//   - Every other failure notifies the user and is scoped to the call.
//   - A 2xx body whose "success" field is false is a [LogicalFailure].
//
// Failures are returned as [*Error] and match the package sentinels with
// errors.Is.
//
// # What this package must NOT do
//
//   - Retry. Each call is dispatched exactly once.
//   - Write durable storage. Session changes go through [Session.Invalidate].
//   - Hold a lock across network I/O.
package pipeline
