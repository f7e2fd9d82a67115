// Package models defines the core domain models for the settlement engine.
//
// # Models
//
//   - Member: opaque participant identifier within a settlement group
//   - Group: settlement group with an owner, a member list and the
//     settlement checkpoint
//   - Expense: immutable shared-expense record paid by one member and
//     split among a subset of members
//   - SettlementEdge: a suggested point-to-point transfer
//   - Checkpoint: watermark metadata written after a final settlement
//   - LedgerEntry: the obligation transaction appended to a member's
//     personal ledger on commit
//
// # Design Principles
//
//  1. **Money is decimal**: all amounts are shopspring decimals; float64
//     never touches a monetary value.
//  2. **Members are opaque strings**: display-name resolution is owned by
//     the surrounding application, not this engine.
//  3. **Avoid circular references**: models reference each other by ID
//     strings, never by pointer.
//  4. **Timestamps normalize at the boundary**: external sources hand us
//     dates in several shapes; ParseTime converts them once, at the edge.
package models
