// Package config loads and validates the YAML configuration shared by the
// panel tools: stream endpoints and timings, the log archive database, and
// the recorder's batching settings. ${VAR} references in the file are
// expanded from the environment at load time.
package config
