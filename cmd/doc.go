// Package cmd implements the command-line interface for gmailnotifier.
//
// This package provides the following commands:
//   - serve: Start the notification web service
//   - check: Run the notification check once for a single mailbox
//   - version: Display version information
//   - generate-docs: Generate markdown reference documentation
//
// The serve command is the default command when no subcommand is specified.
package cmd
