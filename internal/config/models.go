package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	apperrors "github.com/meridianapp/realtime-gateway/internal/core/errors"
)

// ModelDefinition is one entry of the model manifest file. The manifest is
// the declarative stand-in for the CRUD layer's startup registration calls:
// everything expressible as data lives here, while custom resolvers and
// serializers stay code-level registrations.
type ModelDefinition struct {
	Model           string   `json:"model"`
	Route           string   `json:"route"`
	Collection      string   `json:"collection"`
	Strategy        string   `json:"strategy"`
	OwnerField      string   `json:"ownerField,omitempty"`
	SoftDeleteField string   `json:"softDeleteField,omitempty"`
	Operations      []string `json:"operations,omitempty"`
	HiddenFields    []string `json:"hiddenFields,omitempty"`
	AdminOnly       bool     `json:"adminOnly,omitempty"`
}

// ModelManifest is the top-level shape of the manifest file.
type ModelManifest struct {
	Models []ModelDefinition `json:"models"`
}

// LoadModels reads and validates a model manifest, returning registry
// entries in file order.
func LoadModels(path string) ([]domain.RegistryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model manifest: %w", err)
	}

	var manifest ModelManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing model manifest: %w", err)
	}

	seen := make(map[string]string, len(manifest.Models))
	entries := make([]domain.RegistryEntry, 0, len(manifest.Models))

	for i, def := range manifest.Models {
		entry, err := def.toEntry()
		if err != nil {
			return nil, fmt.Errorf("model manifest entry %d: %w", i, err)
		}
		if prev, dup := seen[entry.Collection]; dup {
			return nil, fmt.Errorf("model manifest entry %d: %w: collection %q already registered by model %q",
				i, apperrors.ErrDuplicateModel, entry.Collection, prev)
		}
		seen[entry.Collection] = entry.Model
		entries = append(entries, entry)
	}

	return entries, nil
}

func (d ModelDefinition) toEntry() (domain.RegistryEntry, error) {
	if d.Model == "" {
		return domain.RegistryEntry{}, fmt.Errorf("model name is required")
	}
	if d.Collection == "" {
		return domain.RegistryEntry{}, fmt.Errorf("collection is required for model %q", d.Model)
	}

	strategy := domain.RoomStrategy(d.Strategy)
	if d.Strategy == "" {
		strategy = domain.StrategyOwner
	}
	if !strategy.Valid() {
		return domain.RegistryEntry{}, fmt.Errorf("unknown room strategy %q for model %q", d.Strategy, d.Model)
	}
	// Custom strategies need a resolver function, which a data file cannot
	// carry; those models register through code.
	if strategy == domain.StrategyCustom {
		return domain.RegistryEntry{}, fmt.Errorf("model %q: custom strategy cannot be declared in the manifest", d.Model)
	}
	if strategy == domain.StrategyOwner && d.OwnerField == "" {
		return domain.RegistryEntry{}, fmt.Errorf("model %q: owner strategy requires ownerField", d.Model)
	}

	operations := make([]domain.OperationKind, 0, len(d.Operations))
	for _, raw := range d.Operations {
		op := domain.OperationKind(raw)
		if !op.Valid() {
			return domain.RegistryEntry{}, fmt.Errorf("model %q: unknown operation %q", d.Model, raw)
		}
		operations = append(operations, op)
	}

	return domain.RegistryEntry{
		Model:      d.Model,
		Route:      d.Route,
		Collection: d.Collection,
		Realtime: domain.RealtimeConfig{
			Operations:      operations,
			Strategy:        strategy,
			OwnerField:      d.OwnerField,
			SoftDeleteField: d.SoftDeleteField,
		},
		Rules: domain.PermissionRules{
			HiddenFields: d.HiddenFields,
			AdminOnly:    d.AdminOnly,
		},
	}, nil
}
