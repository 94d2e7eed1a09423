// Package guard decides, before a view is shown, whether the current session
// may reach it.
//
// A [Table] maps paths to [Route] descriptors using gorilla/mux templates
// ("/ledger/edit/{id}"). [Guard.Evaluate] checks the destination against the
// session and returns one [Decision]:
//
//   - Redirect when the route itself points elsewhere (e.g. "/").
//   - RedirectToHome when an authenticated user asks for the login view.
//   - RedirectToLogin, with the requested path as the redirect target, when
//     the route requires authentication and there is no session.
//   - Deny when the route requires an administrator and the user is not one.
//   - Allow otherwise.
//
// # What this package must NOT do
//
//   - Mutate the session. The guard only reads it.
//   - Navigate. Callers act on the returned Decision.
package guard
