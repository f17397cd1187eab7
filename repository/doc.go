// Package repository provides a generic Bun repository bound to a context
// locator. Reads go through the enlisted handle of the caller's unit of work
// and writes are queued on the locator's DbContext until the unit of work
// saves them.
package repository
