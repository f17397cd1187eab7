// Package transact runs operations as units of work over Bun databases.
//
// An Interceptor gives every call its own context pool and wraps the call
// body in a transaction scope. Repositories and services used by the body
// queue their writes on the pool's DbContexts; when the body returns without
// error the interceptor saves every pending change into the enlisted
// transactions and commits them together. Any error rolls everything back
// and is returned unchanged.
//
// Which operations run transactionally, and with which isolation level and
// propagation, is decided by a Resolver, usually loaded from the
// unit_of_work section of a YAML file with LoadOperations.
package transact
