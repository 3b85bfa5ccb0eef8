// Package planner creates upload plans by diffing the source catalogue
// against persisted sync state.
//
// Planning is a pure function of its inputs: it performs no I/O, never
// fails on malformed input, and produces the same plan for the same
// catalogue and state. Content hashing is deliberately deferred to
// transfer time because content can only be hashed after download.
package planner

import (
	"github.com/shelfsync/shelfsync/synctypes"
)

// Planner decides which catalogue items need to be uploaded.
type Planner struct {
	maxNameLength int
}

// New creates a planner. maxNameLength bounds normalized file names; a
// non-positive value selects the default.
func New(maxNameLength int) *Planner {
	if maxNameLength <= 0 {
		maxNameLength = DefaultMaxNameLength
	}
	return &Planner{maxNameLength: maxNameLength}
}

// Plan diffs catalogue against state and returns the upload plan.
//
// An item is included iff its id is absent from state, or the persisted
// updated_at is missing or differs from the item's, or the persisted
// size is missing or differs from the item's. A missing state field is
// treated as differing so a possibly-changed item is never silently
// skipped. Items without a usable id are dropped.
//
// Generated names may collide with each other or with existing
// destination entries; collisions are resolved at transfer time.
func (p *Planner) Plan(catalogue []synctypes.ItemRecord, state *synctypes.State) []synctypes.PlanEntry {
	var plan []synctypes.PlanEntry

	for _, item := range catalogue {
		if item.ID == "" {
			continue
		}
		if state != nil {
			if rec, ok := state.Items[item.ID]; ok && !changed(rec, item) {
				continue
			}
		}

		ext := item.Ext
		if ext == "" {
			ext = DefaultExt
		}

		name := item.Title
		if name == "" {
			name = item.ID
		}

		plan = append(plan, synctypes.PlanEntry{
			Action:    synctypes.ActionUpload,
			ID:        item.ID,
			RelPath:   SafeFileName(name, p.maxNameLength) + "." + ext,
			Title:     item.Title,
			Ext:       ext,
			UpdatedAt: item.UpdatedAt,
			Size:      item.Size,
			Locator:   item.Locator,
		})
	}

	return plan
}

// changed reports whether the persisted record differs from the
// catalogue item. Missing persisted fields count as changed.
func changed(rec synctypes.StateRecord, item synctypes.ItemRecord) bool {
	if rec.UpdatedAt == "" || rec.UpdatedAt != item.UpdatedAt {
		return true
	}
	if rec.Size == 0 || rec.Size != item.Size {
		return true
	}
	return false
}
