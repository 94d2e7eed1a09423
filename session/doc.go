// Package session owns the client-side login session: the bearer credential,
// the identity of the signed-in user, and their mirror in durable storage.
//
// # Lifecycle
//
// A [Store] starts empty, is populated once from durable storage by
// [Store.Restore], is filled by [Store.Login], patched by
// [Store.UpdateIdentity], and cleared by [Store.Logout] or by
// [Store.Invalidate] when the remote API rejects the credential.
//
// # Durable storage
//
// [Storage] is a minimal string key-value port. [MemoryStorage],
// [RedisStorage], and [BadgerStorage] implement it. Only Store mutators write
// to it; everything else reads through the Store's query methods.
//
// # What this package must NOT do
//
//   - Import pipeline, guard, or the root package (no upward imports).
//   - Perform network calls other than through a [Storage] backend.
//   - Validate credentials. They are opaque; see package credential.
package session
