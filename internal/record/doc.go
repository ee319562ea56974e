// Package record provides the persisted record types for the risk register.
//
// This package contains the data model only. Every other internal package
// imports record; record imports nothing internal.
//
// Key design constraints:
//   - Risk.ControlRefs and Control.RiskRefs are sets stored as ordered slices
//   - Control.Reference always mirrors Control.ID
//   - A zero CreatedAt means "unknown" and sorts as epoch 0
//   - JSON tags use camelCase to match the stored document layout
package record
