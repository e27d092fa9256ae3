// Package store provides storage collaborators for the profile projector
// and the exporter: an in-memory store for tests and embedding, and a
// SQLite store for the CLI. Both keep profile items as JSON documents keyed
// by node id and namespace.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
)

// ErrNotFound is returned by Item when no item has the key.
var ErrNotFound = errors.New("store: not found")

// BuiltinLookups returns the lookup data types of the builtin core data
// types, sorted by name. Ids are stable across stores.
func BuiltinLookups() []profile.LookupDataType {
	reg := graph.NewRegistry()
	out := make([]profile.LookupDataType, 0, len(nodeset.BuiltinDataTypes))
	for name, n := range nodeset.BuiltinDataTypes {
		nodeID := nodeset.CoreID(n)
		numeric := reg.DerivesFrom(nodeID, graph.NumberID)
		out = append(out, profile.LookupDataType{
			ID:         builtinLookupID(name),
			Name:       name,
			Code:       strings.ToLower(name),
			NodeID:     nodeID,
			UseEngUnit: numeric,
			UseMinMax:  numeric,
			IsNumeric:  numeric,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func builtinLookupID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(nodeset.CoreNamespace+name)).String()
}

// encodeItem returns the stored form of an item.
func encodeItem(item *profile.ProfileItem) ([]byte, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", item.Key, err)
	}
	return data, nil
}

func decodeItem(data []byte) (*profile.ProfileItem, error) {
	var item profile.ProfileItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &item, nil
}

// profileVersion adapts a stored profile to the exporter's version lookup.
func profileVersion(ctx context.Context, s profile.Store, uri string) (model.ModelIdentity, bool, error) {
	p, err := s.GetProfileForNamespace(ctx, uri)
	if err != nil || p == nil {
		return model.ModelIdentity{}, false, err
	}
	return p.Identity(), true, nil
}
