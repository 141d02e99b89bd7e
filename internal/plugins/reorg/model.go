// Package reorg re-parents campaign tree entities: a tactic into another
// section, a placement into another tactic, or a creative into another
// placement. A move copies the subtree and deletes the old one in a single
// batch, then queues a forced taxonomy regeneration of the moved entities.
package reorg

import (
	"github.com/keyxmakerx/mediatag/internal/plugins/campaigns"
	"github.com/keyxmakerx/mediatag/internal/plugins/regen"
)

// MoveRequest asks to move the document at EntityPath under DestinationPath.
type MoveRequest struct {
	EntityPath      string `json:"entityPath" validate:"required"`
	DestinationPath string `json:"destinationPath" validate:"required"`
}

// MoveResult describes a completed move.
type MoveResult struct {
	Kind string `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`

	// Documents is the number of documents copied, the entity included.
	Documents int `json:"documents"`

	// Regeneration is the queued follow-up job, nil when it could not be
	// queued.
	Regeneration *regen.Job `json:"regeneration,omitempty"`
}

// movable describes one kind of entity that can be re-parented.
type movable struct {
	kind        string
	parentKind  string
	depth       int
	parentField string
	parentID    func(dest campaigns.Ref) string

	// children are the child collections copied along, in tree order.
	children []string
}

var movables = map[int]movable{
	5: {
		kind:        "tactic",
		parentKind:  "section",
		depth:       5,
		parentField: "TC_SectionId",
		parentID:    func(d campaigns.Ref) string { return d.SectionID },
		children:    []string{campaigns.CollPlacements, campaigns.CollCreatives},
	},
	6: {
		kind:        "placement",
		parentKind:  "tactic",
		depth:       6,
		parentField: "PL_TactiqueId",
		parentID:    func(d campaigns.Ref) string { return d.TacticID },
		children:    []string{campaigns.CollCreatives},
	},
	7: {
		kind:        "creative",
		parentKind:  "placement",
		depth:       7,
		parentField: "CR_PlacementId",
		parentID:    func(d campaigns.Ref) string { return d.PlacementID },
	},
}
