// Package auth provides the account and session core of the vaultx identity
// service: credential verification, opaque server side sessions, email
// verification and password reset flows, an admin allow-list policy and the
// fiber routes that expose them.
//
// Accounts:
//   - Users are persisted with Bun. Emails go through NormalizeEmail before
//     every lookup so the unique index and queries agree on one spelling.
//   - Passwords are bcrypt digests. Accounts provisioned through a federated
//     provider carry FederatedPasswordHash, which never verifies.
//
// Sessions:
//   - Sessions issues random ids bound to a user id with a sliding expiry.
//     Resolve always consults the user store, so deleting a user ends their
//     sessions on the next request. An optional cache store (see redisstore)
//     is read first and written through.
//
// Activity sinks:
//   - ActivitySink receives login, registration, reset, session and admin
//     events. Sinks run best-effort: errors are logged and never fail the
//     operation that produced the event. The metrics package provides a
//     Prometheus backed sink.
//
// Federation:
//   - FederatedFlow is implemented by the social package. The Authenticator
//     accepts the resulting FederatedAssertion and provisions a verified
//     account on first sign in.
package auth
