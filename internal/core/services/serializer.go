package services

import (
	"fmt"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
)

// FieldStrippingSerializer returns the default permission-aware serializer
// for a registry entry: a shallow copy of the document with every hidden
// field removed. The input document is never mutated.
func FieldStrippingSerializer(rules domain.PermissionRules) domain.Serializer {
	hidden := make(map[string]struct{}, len(rules.HiddenFields))
	for _, field := range rules.HiddenFields {
		hidden[field] = struct{}{}
	}

	return func(doc domain.Document, _ domain.OperationKind) (domain.Document, error) {
		if doc == nil {
			return nil, nil
		}
		out := make(domain.Document, len(doc))
		for key, value := range doc {
			if _, drop := hidden[key]; drop {
				continue
			}
			out[key] = value
		}
		return out, nil
	}
}

// serializerFor picks the entry's custom serializer when present, otherwise
// the default field stripper built from its permission rules.
func serializerFor(entry domain.RegistryEntry) domain.Serializer {
	if entry.Realtime.Serializer != nil {
		return entry.Realtime.Serializer
	}
	return FieldStrippingSerializer(entry.Rules)
}

// ownerID extracts the owning user's id from a document field. Identifiers
// may be stored as strings or as driver-native id types, so anything
// non-nil is rendered through its string form.
func ownerID(doc domain.Document, field string) (string, bool) {
	if doc == nil || field == "" {
		return "", false
	}
	value, ok := doc[field]
	if !ok || value == nil {
		return "", false
	}
	if s, isString := value.(string); isString {
		if s == "" {
			return "", false
		}
		return s, true
	}
	return fmt.Sprint(value), true
}
