package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/profile"
)

type unitKey struct {
	namespace string
	unitID    int32
}

// MemoryStore is an in-memory store. It is safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	items     map[profile.ItemKey][]byte
	itemOrder []profile.ItemKey
	lookups   []*profile.LookupDataType
	units     map[unitKey]*profile.EngineeringUnit
	profiles  []*profile.Profile
}

// NewMemoryStore returns a store seeded with the builtin lookups.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		items: make(map[profile.ItemKey][]byte),
		units: make(map[unitKey]*profile.EngineeringUnit),
	}
	for _, l := range BuiltinLookups() {
		l := l
		s.lookups = append(s.lookups, &l)
	}
	return s
}

// CheckExisting implements profile.Store.
func (s *MemoryStore) CheckExisting(_ context.Context, key profile.ItemKey) (*profile.ProfileItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	return decodeItem(data)
}

// Upsert implements profile.Store.
func (s *MemoryStore) Upsert(_ context.Context, item *profile.ProfileItem, updateExisting bool) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *item
	if data, ok := s.items[item.Key]; ok {
		existing, err := decodeItem(data)
		if err != nil {
			return "", false, err
		}
		if !updateExisting {
			return existing.ID, false, nil
		}
		stored.ID = existing.ID
		data, err := encodeItem(&stored)
		if err != nil {
			return "", false, err
		}
		s.items[item.Key] = data
		return existing.ID, false, nil
	}

	stored.ID = uuid.New().String()
	data, err := encodeItem(&stored)
	if err != nil {
		return "", false, err
	}
	s.items[item.Key] = data
	s.itemOrder = append(s.itemOrder, item.Key)
	return stored.ID, true, nil
}

// GetDataTypeByName implements profile.Store.
func (s *MemoryStore) GetDataTypeByName(_ context.Context, name string) (*profile.LookupDataType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.lookups {
		if l.Name == name {
			c := *l
			return &c, nil
		}
	}
	return nil, nil
}

// GetOrCreateEngineeringUnit implements profile.Store.
func (s *MemoryStore) GetOrCreateEngineeringUnit(_ context.Context, unit profile.EngineeringUnit) (*profile.EngineeringUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := unitKey{namespace: unit.NamespaceURI, unitID: unit.UnitID}
	if u, ok := s.units[k]; ok {
		c := *u
		return &c, nil
	}
	unit.ID = uuid.New().String()
	s.units[k] = &unit
	c := unit
	return &c, nil
}

// CreateCustomDataTypeLookup implements profile.Store.
func (s *MemoryStore) CreateCustomDataTypeLookup(_ context.Context, lookup profile.LookupDataType) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lookup.ID = uuid.New().String()
	s.lookups = append(s.lookups, &lookup)
	return lookup.ID, nil
}

// GetProfileForNamespace implements profile.Store. With several versions
// stored the newest publication wins.
func (s *MemoryStore) GetProfileForNamespace(_ context.Context, uri string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *profile.Profile
	for _, p := range s.profiles {
		if p.Namespace != uri {
			continue
		}
		if newest == nil || p.PublicationDate.After(newest.PublicationDate) {
			newest = p
		}
	}
	if newest == nil {
		return nil, nil
	}
	c := *newest
	return &c, nil
}

// UpsertProfile implements profile.Store.
func (s *MemoryStore) UpsertProfile(_ context.Context, p *profile.Profile) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	for i, existing := range s.profiles {
		if existing.Namespace == p.Namespace && existing.Version == p.Version && existing.Tenant == p.Tenant {
			c.ID = existing.ID
			s.profiles[i] = &c
			out := c
			return &out, nil
		}
	}
	c.ID = uuid.New().String()
	s.profiles = append(s.profiles, &c)
	out := c
	return &out, nil
}

// ItemsForNamespace returns the stored items of a namespace in insertion
// order.
func (s *MemoryStore) ItemsForNamespace(_ context.Context, uri string) ([]*profile.ProfileItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*profile.ProfileItem
	for _, key := range s.itemOrder {
		if key.Namespace != uri {
			continue
		}
		item, err := decodeItem(s.items[key])
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Item returns the stored item with the key.
func (s *MemoryStore) Item(_ context.Context, key profile.ItemKey) (*profile.ProfileItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return decodeItem(data)
}

// Lookup returns the lookup data type with the id.
func (s *MemoryStore) Lookup(_ context.Context, id string) (*profile.LookupDataType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.lookups {
		if l.ID == id {
			c := *l
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: lookup %s", ErrNotFound, id)
}

// ModelVersion returns the newest stored profile of a namespace.
func (s *MemoryStore) ModelVersion(ctx context.Context, uri string) (model.ModelIdentity, bool, error) {
	return profileVersion(ctx, s, uri)
}
