// Package config loads the service configuration from a TOML file.
//
// The file lives at ~/.gmailnotifier/config.toml by default and is optional;
// missing files fall back to defaults so flags and environment variables can
// carry a deployment on their own. The OAuth redirect URL is derived from
// server.base_url when not set explicitly.
package config
