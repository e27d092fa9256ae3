package profile

import "context"

// Store is the storage collaborator of the projector. Lookups return nil
// without error when nothing matches.
type Store interface {
	// CheckExisting returns the stored item with the key.
	CheckExisting(ctx context.Context, key ItemKey) (*ProfileItem, error)

	// Upsert stores an item and reports whether a new record was created.
	// With updateExisting false an existing record is left untouched.
	Upsert(ctx context.Context, item *ProfileItem, updateExisting bool) (id string, created bool, err error)

	// GetDataTypeByName returns the lookup data type with the name.
	GetDataTypeByName(ctx context.Context, name string) (*LookupDataType, error)

	// GetOrCreateEngineeringUnit returns the stored unit matching unit's
	// namespace and unit id, creating it when absent.
	GetOrCreateEngineeringUnit(ctx context.Context, unit EngineeringUnit) (*EngineeringUnit, error)

	// CreateCustomDataTypeLookup stores a lookup data type for a custom
	// type and returns its id.
	CreateCustomDataTypeLookup(ctx context.Context, lookup LookupDataType) (string, error)

	// GetProfileForNamespace returns the profile owning a namespace.
	GetProfileForNamespace(ctx context.Context, uri string) (*Profile, error)

	// UpsertProfile stores a profile keyed by namespace and version.
	UpsertProfile(ctx context.Context, p *Profile) (*Profile, error)
}
