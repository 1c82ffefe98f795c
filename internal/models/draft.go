// Package models provides data model definitions for the brokersync core.
package models

import "time"

// PendingEntity is the locally persisted draft of one business record
// (an estimation, a mission, a lead) awaiting confirmation from the
// remote system of record.
type PendingEntity struct {
	EntityID string                 `json:"entity_id"`
	Draft    map[string]interface{} `json:"draft"`
	SavedAt  time.Time              `json:"saved_at"`
	Synced   bool                   `json:"synced"`
}

// Merge applies a partial payload onto the draft, last write wins per field.
func (p *PendingEntity) Merge(partial map[string]interface{}) {
	if p.Draft == nil {
		p.Draft = make(map[string]interface{}, len(partial))
	}
	for k, v := range partial {
		p.Draft[k] = v
	}
}
