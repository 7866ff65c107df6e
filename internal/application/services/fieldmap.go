// Package services provides application-level orchestration services
package services

import "strings"

// FieldMapping resolves one logical lead field from an ordered list of
// candidate payload keys. The first non-empty candidate wins.
type FieldMapping struct {
	Field      string
	Candidates []string
}

// pipelineFieldMappings covers the CRM pipeline fields that postback
// payloads spell inconsistently across sources.
var pipelineFieldMappings = []FieldMapping{
	{Field: "status", Candidates: []string{"status", "lead_status", "leadstatus"}},
	{Field: "disposition", Candidates: []string{"disposition", "call_disposition", "calldisposition"}},
	{Field: "stage", Candidates: []string{"stage", "pipeline_stage", "dealstage", "deal_stage"}},
	{Field: "contract_date", Candidates: []string{"contract_date", "contractdate", "signed_date", "closedate"}},
	{Field: "signed_total", Candidates: []string{"signed_total", "signedtotal", "contract_amount", "amount"}},
}

// MapPipelineFields extracts the recognized pipeline fields from a raw
// payload, keyed by logical field name. Lookup is case-insensitive on
// the payload side.
func MapPipelineFields(payload map[string]string) map[string]string {
	if len(payload) == 0 {
		return nil
	}

	lowered := make(map[string]string, len(payload))
	for k, v := range payload {
		if v == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(k))
		if _, exists := lowered[key]; !exists {
			lowered[key] = v
		}
	}

	mapped := make(map[string]string)
	for _, mapping := range pipelineFieldMappings {
		for _, candidate := range mapping.Candidates {
			if v, ok := lowered[candidate]; ok {
				mapped[mapping.Field] = v
				break
			}
		}
	}
	return mapped
}
