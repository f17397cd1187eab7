// Package database provides per-locator connection management on top of Bun:
// connection configuration, a locator registry that lazily opens each
// configured database, query logging hooks, SQL error classification, model
// registration and the logger contract used across the module.
package database
