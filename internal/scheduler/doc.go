// Package scheduler registers the recurring notification check for a user.
//
// Registration is fire-and-forget: the Registrar ensures the Pub/Sub
// delivery topic exists (create-if-absent), then creates or updates a
// Cloud Scheduler job that publishes the check payload on a fixed
// schedule. Job and topic names derive deterministically from the local
// part of the user's email, so re-registering for the same email always
// targets the same resources.
package scheduler
