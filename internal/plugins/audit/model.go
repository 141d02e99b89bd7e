// Package audit records the actions taken on a client's media plans: tag
// lifecycle changes, hierarchy moves and taxonomy regeneration runs. Every
// action is captured as an AuditEntry and persisted to the audit_log table
// (or kept in memory with the memory store driver).
//
// The audit log only observes. A failed audit write never fails the action
// being recorded.
package audit

import "time"

// --- Action Constants ---
// Each action string follows the pattern "resource.verb" for consistent
// filtering.

const (
	// ActionTagsCreated is logged when the first CM360 tag of an entity is taken.
	ActionTagsCreated = "tags.created"

	// ActionTagsConfirmed is logged when a new version is appended after the
	// user confirmed the ad server was updated.
	ActionTagsConfirmed = "tags.confirmed"

	// ActionTagsCancelled is logged when an entity's whole tag history is removed.
	ActionTagsCancelled = "tags.cancelled"

	// ActionEntityMoved is logged when a tactic, placement or creative is
	// re-parented.
	ActionEntityMoved = "entity.moved"

	// ActionTaxonomyRegenerated is logged when a single entity's generated
	// taxonomy fields are rewritten.
	ActionTaxonomyRegenerated = "taxonomy.regenerated"

	// ActionTaxonomyBulkRegenerated is logged when a post-move bulk
	// regeneration commits.
	ActionTaxonomyBulkRegenerated = "taxonomy.bulk_regenerated"

	// ActionTaxonomyBulkFailed is logged when a post-move bulk regeneration
	// could not commit.
	ActionTaxonomyBulkFailed = "taxonomy.bulk_failed"
)

// AuditEntry represents a single recorded action in the audit log.
// EntityPath is the document path the action applied to. The Details map
// holds action-specific metadata (e.g., source and destination of a move).
type AuditEntry struct {
	ID         int64          `json:"id"`
	ClientID   string         `json:"clientId"`
	CampaignID string         `json:"campaignId"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entityKind,omitempty"`
	EntityPath string         `json:"entityPath,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}
