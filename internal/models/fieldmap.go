package models

import (
	"strings"
	"unicode"
)

// FieldMap maps draft payload field names onto the remote schema's column
// names. Fields without an explicit mapping fall back to snake_case.
type FieldMap map[string]string

// EstimationFieldMap covers the estimation record, the entity the field
// teams edit most while offline.
var EstimationFieldMap = FieldMap{
	"propertyAddress":  "property_address",
	"propertyType":     "property_type",
	"surfaceM2":        "surface_m2",
	"roomCount":        "room_count",
	"askingPrice":      "asking_price",
	"estimatedPrice":   "estimated_price",
	"ownerName":        "owner_name",
	"ownerPhone":       "owner_phone",
	"visitNotes":       "visit_notes",
	"pipelineStatus":   "pipeline_status",
	"assignedAgentId":  "assigned_agent_id",
	"missionId":        "mission_id",
	"rentabilityScore": "rentability_score",
}

// Apply translates a draft payload into a sparse remote update.
func (m FieldMap) Apply(draft map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(draft))
	for k, v := range draft {
		if remote, ok := m[k]; ok {
			out[remote] = v
			continue
		}
		out[snakeCase(k)] = v
	}
	return out
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
