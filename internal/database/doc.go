// Package database manages the pgx connection pool for the log archive and
// builds its connection string from config.
package database
