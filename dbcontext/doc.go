// Package dbcontext holds persistence contexts and the per-operation pool
// that tracks them.
//
// A DbContext is bound to one locator. Reads go through the handle enlisted
// in the ambient transaction of the caller's context; writes are queued as
// pending changes and only reach the database on SaveChanges. A Pool keeps
// at most one DbContext per locator for the lifetime of one operation so
// that the unit of work can save all of them before committing.
package dbcontext
