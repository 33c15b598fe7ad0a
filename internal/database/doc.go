// Package database provides the PostgreSQL connection pool backing the
// trade journal.
package database
