package validation

import (
	"regexp"
	"strings"
)

// Government-issued identifiers and provider credentials must never reach
// logs, the tracking store, or the audit index. These helpers scrub both
// structured values and raw XML payloads before anything is persisted.

const redactedSocSecNumber = "*********"

var (
	socSecTagPattern  = regexp.MustCompile(`(?is)(<\s*(?:SocSecNumber|Itin)\s*>).*?(<\s*/\s*(?:SocSecNumber|Itin)\s*>)`)
	userPasswordTagRe = regexp.MustCompile(`(?is)(<\s*(?:Password|UserName)\s*>).*?(<\s*/\s*(?:Password|UserName)\s*>)`)
	bareSocSecPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// MaskSocSecNumber masks all but nothing: the whole identifier is replaced.
func MaskSocSecNumber(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return redactedSocSecNumber
}

// ObscureXMLPayload scrubs SSN/ITIN values and provider credentials from a
// raw XML payload so the stored copy is safe to persist and index.
func ObscureXMLPayload(payload string) string {
	scrubbed := socSecTagPattern.ReplaceAllString(payload, "${1}"+redactedSocSecNumber+"${2}")
	scrubbed = userPasswordTagRe.ReplaceAllString(scrubbed, "${1}"+redactedSocSecNumber+"${2}")
	scrubbed = bareSocSecPattern.ReplaceAllString(scrubbed, redactedSocSecNumber)
	return scrubbed
}

// ObscureLogFields returns a copy of fields with identifier and credential
// keys masked. Safe to call with nil.
func ObscureLogFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch strings.ToLower(k) {
		case "socsecnumber", "ssn", "itin", "password", "username":
			out[k] = redactedSocSecNumber
		default:
			out[k] = v
		}
	}
	return out
}
