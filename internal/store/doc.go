// Package store persists experiment runs and their comparison reports in a
// single SQLite database file so they survive daemon restarts.
package store
