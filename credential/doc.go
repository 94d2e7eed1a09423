// Package credential inspects the opaque bearer credential held by the session.
//
// The gateway never issues or verifies credentials; the remote API does. When
// the credential happens to be a JWT, this package reads its claims without
// verifying the signature so the client can notice a locally expired token or
// rebuild a missing identity after restore.
//
// # What this package must NOT do
//
//   - Treat decoded claims as proof of identity. They are hints only.
//   - Import session, pipeline, or the root package.
package credential
