// Package events routes platform events to mapped workflows.
package events

import (
	"github.com/oliveagle/jsonpath"
)

// TransformPayload projects an event payload through a field mapping. Each
// entry maps a target field name to a dotted path into the source payload
// (e.g. "user.email"). Fields whose path resolves to nothing are omitted
// rather than set to null. A nil or empty mapping passes the payload
// through unchanged.
func TransformPayload(payload map[string]interface{}, mapping map[string]string) map[string]interface{} {
	if len(mapping) == 0 {
		return payload
	}

	out := make(map[string]interface{}, len(mapping))
	for target, path := range mapping {
		value, err := jsonpath.JsonPathLookup(payload, "$."+path)
		if err != nil {
			continue
		}
		out[target] = value
	}

	return out
}
