package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate service reference documentation",
		Long: `Generate markdown documentation for the HTTP endpoints and the CLI
commands. The command section is introspected from the registered commands
and flags, so it stays in sync with the actual implementation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.Root(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(root *cobra.Command, outputFile string) error {
	markdown := generateReferenceMarkdown(root)

	// Write to output
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

// endpointDoc describes one HTTP endpoint for the generated reference.
type endpointDoc struct {
	Method      string
	Path        string
	Description string
	Parameters  []string
	Responses   []string
}

var httpEndpoints = []endpointDoc{
	{
		Method:      "GET",
		Path:        "/oauth2init",
		Description: "Starts the authorization flow. Redirects the browser to Google's consent page with a single-use state token.",
		Responses: []string{
			"`302` redirect to the Google authorization URL",
		},
	},
	{
		Method:      "GET",
		Path:        "/oauth2callback",
		Description: "OAuth redirect target; not called directly. Exchanges the authorization code, resolves the account's email address and stores the credential, then shows links to `/setCron` and `/setEditQuery`.",
		Parameters: []string{
			"`state` (required): the token issued by `/oauth2init`; single use",
			"`code` (required): the authorization code from Google",
		},
		Responses: []string{
			"`200` HTML confirmation page",
			"`400` on a missing or already-used state, a missing code, or a provider error",
			"`500` when the exchange, profile lookup or store write fails (nothing is persisted)",
		},
	},
	{
		Method:      "GET",
		Path:        "/setCron",
		Description: "Registers the recurring check for an authorized mailbox: creates the Pub/Sub topic and the Cloud Scheduler job if missing, and records the registration time. Safe to call repeatedly.",
		Parameters: []string{
			"`emailAddress` (required): the mailbox to register",
		},
		Responses: []string{
			"`200` with body `Cron initialized!`",
			"`400` with `No emailAddress specified.` or `Invalid emailAddress.`",
			"`500` when the credential lookup or the registration fails",
		},
	},
	{
		Method:      "GET, POST",
		Path:        "/setEditQuery",
		Description: "GET serves the HTML query editor showing the current query; POST saves the submitted query. Saving requires a stored credential for the address.",
		Parameters: []string{
			"`emailAddress` (required): the mailbox the query belongs to",
			"`query` (required on POST): the Gmail search expression",
		},
		Responses: []string{
			"`200` HTML editor (GET) or confirmation (POST)",
			"`400` on a missing or invalid address, or a missing query on POST",
			"`403` on POST when no authorization is on file for the address",
		},
	},
	{
		Method:      "POST",
		Path:        "/notify",
		Description: "Pub/Sub push endpoint. Decodes the scheduler payload and runs the check for the named mailbox: searches for messages matching the stored query since the last run, then advances the marker.",
		Parameters: []string{
			"request body: Pub/Sub push envelope whose `message.data` carries the base64 JSON payload with `emailAddress`",
		},
		Responses: []string{
			"`204` when the check completed (including when no query is stored)",
			"`400` on an unparseable envelope or payload",
			"`500` when the check fails; Pub/Sub will redeliver",
		},
	},
	{
		Method:      "GET",
		Path:        "/healthz",
		Description: "Liveness probe; always `200` while the process runs.",
	},
	{
		Method:      "GET",
		Path:        "/readyz",
		Description: "Readiness probe; `200` once the server accepts traffic, `503` before startup completes and during shutdown.",
	},
	{
		Method:      "GET",
		Path:        "/healthz/detailed",
		Description: "Detailed health response including uptime and per-component checks.",
	},
}

func generateReferenceMarkdown(root *cobra.Command) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# gmailnotifier Reference\n\n")
	sb.WriteString("This document describes the HTTP endpoints and CLI commands of gmailnotifier.\n\n")
	sb.WriteString("**Note:** The command section is automatically generated from the command definitions.\n\n")

	// HTTP endpoints
	sb.WriteString("## HTTP Endpoints\n\n")
	for _, ep := range httpEndpoints {
		sb.WriteString(generateEndpointMarkdown(ep))
		sb.WriteString("\n")
	}

	// Commands
	sb.WriteString("## Commands\n\n")

	commands := make([]*cobra.Command, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		if c.Hidden || c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		commands = append(commands, c)
	}
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name() < commands[j].Name()
	})

	for _, c := range commands {
		sb.WriteString(generateCommandMarkdown(c))
		sb.WriteString("\n")
	}

	return sb.String()
}

func generateEndpointMarkdown(ep endpointDoc) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s %s\n\n", ep.Method, ep.Path))
	sb.WriteString(fmt.Sprintf("%s\n\n", ep.Description))

	if len(ep.Parameters) > 0 {
		sb.WriteString("**Parameters:**\n")
		for _, p := range ep.Parameters {
			sb.WriteString(fmt.Sprintf("- %s\n", p))
		}
		sb.WriteString("\n")
	}

	if len(ep.Responses) > 0 {
		sb.WriteString("**Responses:**\n")
		for _, r := range ep.Responses {
			sb.WriteString(fmt.Sprintf("- %s\n", r))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func generateCommandMarkdown(c *cobra.Command) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", c.Name()))

	if c.Long != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", strings.TrimSpace(c.Long)))
	} else if c.Short != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", c.Short))
	}

	flags := make([]*pflag.Flag, 0)
	c.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		flags = append(flags, f)
	})

	if len(flags) > 0 {
		sb.WriteString("**Flags:**\n")
		for _, f := range flags {
			sb.WriteString(fmt.Sprintf("- `--%s` (%s): %s", f.Name, f.Value.Type(), f.Usage))
			if f.DefValue != "" && f.DefValue != "false" {
				sb.WriteString(fmt.Sprintf(" (default: %s)", f.DefValue))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
