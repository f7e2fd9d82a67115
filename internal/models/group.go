package models

import "time"

// Member identifies a participant within a settlement group.
// It is an opaque string; this engine attaches no attributes to it.
type Member string

// Group represents a settlement group: a member list, a designated owner
// and the checkpoint left behind by the last final settlement.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Goa Trip", "Flat 4B").
	Name string

	// Members is the ordered list of member identifiers in this group.
	// The order is preserved because it is the tie-break used when the
	// debt simplifier sorts equal balances.
	Members []Member

	// CreatedBy is the group owner. Only the owner may commit a final
	// settlement.
	CreatedBy Member

	// CreatedAt is when the group was created.
	CreatedAt time.Time

	// Checkpoint holds the last committed settlement watermark, or nil if
	// the group has never been settled.
	Checkpoint *Checkpoint

	// CheckpointVersion is the optimistic-concurrency token guarding
	// checkpoint updates. It starts at zero and increments on every
	// successful checkpoint write.
	CheckpointVersion int64
}

// HasMember reports whether m is in the group's member list.
func (g *Group) HasMember(m Member) bool {
	for _, gm := range g.Members {
		if gm == m {
			return true
		}
	}
	return false
}
