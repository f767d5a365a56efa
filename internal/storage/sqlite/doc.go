// Package sqlite persists pipeline results and expired tracks to a SQLite
// database. The schema is managed by embedded golang-migrate migrations.
package sqlite
