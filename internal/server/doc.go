// Package server provides the HTTP entry points of the notifier service.
//
// # Endpoints
//
//   - /oauth2init starts the Google authorization flow: it registers a
//     single-use state parameter and redirects to the consent page with
//     offline access and a forced consent prompt.
//   - /oauth2callback completes the flow: state validation, code exchange,
//     email resolution via the Gmail profile, credential persistence, and an
//     HTML confirmation linking to the follow-up endpoints. The sequence is
//     all-or-nothing; nothing is stored unless every step succeeds.
//   - /setCron registers the recurring check: delivery topic first
//     (create-if-absent), then the Cloud Scheduler job (create-or-update),
//     then the initial last-run marker.
//   - /setEditQuery serves the query editor (GET) and saves updates (POST).
//     Updates require a stored credential for the submitted address.
//   - /notify receives the Pub/Sub push when the scheduled job fires and
//     runs the notification check.
//   - /healthz, /readyz, /healthz/detailed serve the probe endpoints; a
//     separate MetricsServer exposes Prometheus metrics on its own port.
//
// # Error Taxonomy
//
// Client input problems answer 400 with a specific message, unsupported
// methods 405, and upstream failures 500 with a generic body; the detail
// goes to the structured log only. A query update for an address without a
// stored credential answers 403.
//
// # Security
//
//   - State parameters are random, single-use, and expire (StateRegistry)
//   - The OAuth endpoints sit behind a per-IP rate limiter
//   - Non-local base URLs must be HTTPS
//   - Logs carry anonymized user hashes instead of addresses
package server
