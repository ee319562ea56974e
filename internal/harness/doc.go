// Package harness runs YAML scenarios against a real Registry.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	seed:
//	  risks:
//	    - id: R1
//	      title: Vendor outage
//	      control_refs: [CTRL-7]
//	  controls:
//	    - id: CTRL-7
//	      title: Backups
//	      created_at: 2023-02-01T00:00:00Z
//	steps:
//	  - op: create_control
//	    title: Restore drill
//	    refs: [R1]
//	    expect_id: CTRL-008
//	  - op: reconcile
//	assertions:
//	  - type: risk_refs
//	    id: R1
//	    refs: [CTRL-7, CTRL-008]
//	  - type: writes
//	    step: 2
//	    collection: controls
//	    count: 0
//	principles: [closure, reconcile_idempotent]
//
// Seed records are written straight to the store, so they may carry any
// drift. Steps go through the Registry. Step numbers in assertions are
// 1-based.
//
// # Operations
//
//   - create_risk, update_risk, delete_risk
//   - create_control, update_control, delete_control
//   - reconcile (prune: true selects PruneDangling), migrate, bootstrap
//
// # Assertion Types
//
//   - relation_holds: no asymmetric pair exists (dangling refs allowed)
//   - no_violations: no asymmetric pair and no dangling ref
//   - risk_refs / control_refs: reference set of one record, order ignored
//   - control_ids: Control ids in collection order
//   - count: number of records in a collection
//   - writes: collection saves performed by one step
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory backend, a DeterministicClock and a
// SequenceGenerator for Risk ids (R1, R2, ... after the seeded ones), so the
// same scenario always produces byte-identical golden snapshots.
package harness
