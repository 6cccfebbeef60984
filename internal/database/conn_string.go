package database

import (
	"fmt"
	"net/url"

	"github.com/fwpanel/panel-stream/internal/config"
)

// BuildConnString renders the archive database settings as a pgx-compatible
// postgres:// URL. The password is query-escaped so generated secrets with
// URL metacharacters survive the round trip; an unset sslmode falls back to
// prefer, matching the config default.
func BuildConnString(cfg config.DBConfig) string {
	mode := cfg.SSLMode
	if mode == "" {
		mode = "prefer"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		mode,
	)
}
