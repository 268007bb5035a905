package domain

import "time"

// SpecRevision is an immutable snapshot of a job's specification document.
// Revisions for a job form an append-only sequence; the latest one is current.
type SpecRevision struct {
	ID                string    `json:"id" db:"id"`
	JobID             string    `json:"job_id" db:"job_id"`
	RevisionToken     string    `json:"revision_token" db:"revision_token"`
	ActorID           *string   `json:"actor_id,omitempty" db:"actor_id"`
	Surface           Surface   `json:"surface" db:"surface"`
	BehaviorSnapshot  Snapshot  `json:"behavior_snapshot" db:"behavior_snapshot"`
	StructureSnapshot Snapshot  `json:"structure_snapshot" db:"structure_snapshot"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// SpecPatch carries a partial update to a spec document. Nil fields keep the
// prior revision's value; this is distinct from an explicit empty snapshot.
type SpecPatch struct {
	BehaviorItems  *Snapshot
	StructureItems *Snapshot
}
