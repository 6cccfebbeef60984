// Package recorder archives streamed firewall log entries into Postgres.
// The appliance keeps only a small ring of recent log lines; subscribing
// the recorder to the new-entry channel gives operators a durable trail.
package recorder
