// Package tracking keeps the history of CM360 tags: snapshots of the field
// values believed to be set in the ad server for one placement, creative
// or tactic's media metrics. Snapshots are append-only. The change state of
// an entity is derived by comparing its latest snapshot with the live
// document; it is never stored.
package tracking

import (
	"fmt"
	"time"
)

// EntityKind identifies which field group a snapshot covers.
type EntityKind string

const (
	KindPlacement EntityKind = "placement"
	KindCreative  EntityKind = "creative"

	// KindTacticMetrics is a pseudo-entity: the media metrics of a tactic,
	// tracked separately from its other fields.
	KindTacticMetrics EntityKind = "tactic_metrics"
)

// fieldGroups lists the snapshot-bearing fields of each kind.
var fieldGroups = map[EntityKind][]string{
	KindPlacement: {
		"PL_Label",
		"PL_Tag_Type",
		"PL_Tag_Start_Date",
		"PL_Tag_End_Date",
		"PL_Rotation_Type",
		"PL_Floodlight",
		"PL_Third_Party_Measurement",
		"PL_VPAID",
		"PL_Tag_1",
		"PL_Tag_2",
		"PL_Tag_3",
		"PL_Tag_4",
	},
	KindCreative: {
		"CR_Label",
		"CR_Start_Date",
		"CR_End_Date",
		"CR_Rotation_Weight",
		"CR_Tag_5",
		"CR_Tag_6",
	},
	KindTacticMetrics: {
		"TC_Media_Budget",
		"TC_BuyCurrency",
		"TC_CM360_Volume",
		"TC_CM360_Rate",
		"TC_Buy_Type",
	},
}

// ParseEntityKind validates a kind received from a caller.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	if _, ok := fieldGroups[k]; !ok {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// Fields returns the field group of the kind.
func (k EntityKind) Fields() []string {
	return fieldGroups[k]
}

// Snapshot is one CM360 tag: what we believe was set in the ad server at
// Timestamp. Never mutated once stored.
type Snapshot struct {
	ID         string         `json:"id"`
	ClientID   string         `json:"clientId"`
	CampaignID string         `json:"campaignId"`
	Kind       EntityKind     `json:"kind"`
	EntityPath string         `json:"entityPath"`
	Version    int            `json:"version"`
	Timestamp  time.Time      `json:"timestamp"`
	Values     map[string]any `json:"values"`
}

// History is the derived tag history of one entity.
type History struct {
	Kind       EntityKind `json:"kind"`
	EntityPath string     `json:"entityPath"`

	// Tags are ordered oldest first.
	Tags          []Snapshot `json:"tags"`
	LatestTag     *Snapshot  `json:"latestTag,omitempty"`
	HasChanges    bool       `json:"hasChanges"`
	ChangedFields []string   `json:"changedFields"`
	State         TagState   `json:"state"`
}

// TagState is the lifecycle state of an entity's tag history.
type TagState string

const (
	StateNone    TagState = "NONE"
	StateCreated TagState = "CREATED"
	StateChanged TagState = "CHANGED"
)

// ChangeSet is the result of comparing live fields with a snapshot.
type ChangeSet struct {
	HasChanges    bool     `json:"hasChanges"`
	ChangedFields []string `json:"changedFields"`
}

// FieldHistory is the display projection of one field across snapshots.
type FieldHistory struct {
	Field   string              `json:"field"`
	Current any                 `json:"current"`
	History []FieldHistoryEntry `json:"history"`
}

// FieldHistoryEntry is one snapshot's value of a field.
type FieldHistoryEntry struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Version   int       `json:"version"`
}

// ChangedEntity is one entity of a campaign whose live values drifted from
// its latest tag.
type ChangedEntity struct {
	EntityPath    string   `json:"entityPath"`
	Version       int      `json:"version"`
	ChangedFields []string `json:"changedFields"`
}
