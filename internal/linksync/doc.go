// Package linksync maintains the Risk/Control relation.
//
// Both collections carry a denormalized reference set naming the other
// side. The relation invariant is
//
//	c.ID ∈ r.ControlRefs  ⟺  r.ID ∈ c.RiskRefs
//
// for every Risk r and Control c. The store has no cross-collection
// transactions, so the invariant is restored rather than enforced:
//
//   - the Synchronizer pushes one record's declared set into the mirror
//     field of the opposite collection after every save or delete
//   - Reconcile repairs accumulated drift (imports, direct edits, lost
//     updates between sessions) and is safe to re-run
//   - MigrateControlIDs renumbers Controls into CTRL-NNN and rewrites every
//     inbound Risk reference
//
// Every operation reads a whole collection, mutates it in memory and
// writes it back once, and only when something changed. The Apply*
// functions are the in-memory halves and never touch the store.
package linksync
