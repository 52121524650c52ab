// Package http provides HTTP handlers and middleware for the back-office API.
//
// Every request must carry `Authorization: Bearer <token>`. Writes must also
// carry `X-Owner-Offset`, the owner's UTC offset in minutes east of UTC
// (-360 for UTC-06:00); local dates and times in request bodies are
// converted with it exactly once. Responses render instants as RFC 3339 in
// that offset, or in UTC when the header is absent.
//
// The router exposes the following endpoints:
//   - POST /families, GET /families/{id}, POST /families/{id}/children,
//     GET /families/{id}/rules: households and the children rules may name.
//   - GET|POST /services, PUT /services/{id}: the priced service catalog;
//     `default_hourly_rate` is a decimal string.
//   - POST /rules, GET|PUT|DELETE /rules/{id}: recurrence rules exchanging the
//     `ruleDTO` payload defined in rule_handler.go. DELETE accepts
//     `?cascade=true` to cancel the rule's future sessions.
//   - POST /rules/{id}/expand: body {"range_start","range_end"} (civil dates).
//     Response {"created":[sessionDTO],"skipped":[...]} where each skip names
//     BLACKED_OUT or ALREADY_EXISTS.
//   - GET /sessions (filters: family_id, rule_id, status, from, to, confirmed,
//     unpaid), POST /sessions, GET|PUT /sessions/{id}.
//   - POST /sessions/{id}/transition: body {"status","confirmed"}.
//   - GET /sessions/{id}/amount, POST /sessions/{id}/expenses.
//   - GET /families/{id}/billable-sessions.
//   - GET|POST /blackouts, DELETE /blackouts/{id}.
//   - GET /payments?family_id=, POST /payments, POST /payments/preview,
//     GET /payments/{id}, POST /payments/{id}/cancel.
//
// Errors use `errorResponse` from responder.go: a stable `error_code`, a
// message, and per-field `errors` for 422 responses.
package http
