// Package transaction manages unit-of-work transaction scopes: isolation,
// propagation, ambient scopes carried in context.Context, per-locator
// enlistment of bun transactions and their coordinated commit or rollback.
//
// Every persistence call made while a scope is open must receive the context
// returned by Begin (or a context derived from it). Enlist reads the scope
// from that context; nothing is stored in goroutine-local state.
package transaction
