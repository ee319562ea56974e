// Package registry is the mutation surface of the risk register.
//
// Every create, update and delete of a Risk or Control goes through a
// Registry, which performs the primary write, then runs the link
// synchronizer against the opposite collection, then notifies subscribers
// of the primary collection and records one activity event. A failed
// primary write stops the flow before the mirrored write.
//
// A Registry is the single writer for its store: one mutex serialises all
// mutations. Two Registries (or two processes) over the same store can lose
// each other's updates; Reconcile repairs the relation afterwards.
//
// The first read of the Control view bootstraps the session: identifier
// migration when the persisted data version is behind, then one
// reconciliation pass. Bootstrap runs at most once per Registry.
package registry
