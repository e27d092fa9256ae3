// Package model holds the value objects shared by the import pipeline:
// model identities, resolved model values and the per-import result.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/cesmii/profiledesigner/nodeset"
)

// ModelIdentity identifies one version of an information model.
type ModelIdentity struct {
	ModelURI        string
	Version         string
	PublicationDate time.Time

	// CacheKey is the backend-specific location of the raw document.
	CacheKey string
}

// IdentityFromEntry builds an identity from a model table entry.
func IdentityFromEntry(e *nodeset.ModelTableEntry) (ModelIdentity, error) {
	date, err := nodeset.ParsePublicationDate(e.PublicationDateAttr)
	if err != nil {
		return ModelIdentity{}, err
	}
	return ModelIdentity{
		ModelURI:        e.ModelUriAttr,
		Version:         e.VersionAttr,
		PublicationDate: date,
	}, nil
}

// SameOrNewer reports whether id satisfies a requirement on other: the URIs
// match and id is published no earlier than other.
func (id ModelIdentity) SameOrNewer(other ModelIdentity) bool {
	if id.ModelURI != other.ModelURI {
		return false
	}
	return !id.PublicationDate.Before(other.PublicationDate)
}

// Key returns the dependency-graph key of the identity.
func (id ModelIdentity) Key() string {
	return id.ModelURI + "|" + nodeset.FormatPublicationDateExact(id.PublicationDate)
}

// String renders the identity as "ModelUri (Version: v, PubDate: d)".
func (id ModelIdentity) String() string {
	return fmt.Sprintf("%s (Version: %s, PubDate: %s)", id.ModelURI, id.Version, nodeset.FormatPublicationDate(id.PublicationDate))
}

// Scope is the visibility of a cached model. An empty tenant is the global
// scope shared by every tenant.
type Scope struct {
	Tenant string
}

// GlobalScope is the tenant-less scope.
var GlobalScope = Scope{}

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool { return s.Tenant == "" }

// String returns the scope directory/key segment.
func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "tenant-" + s.Tenant
}

// ModelValue is a model loaded during one import.
type ModelValue struct {
	Identity ModelIdentity
	NodeSet  *nodeset.UANodeSet
	Raw      []byte

	// CacheKey locates the stored document; empty when it was not persisted.
	CacheKey string

	// Dependencies lists the URIs of the required models.
	Dependencies   []string
	RequiredModels []ModelIdentity

	// NewInThisImport is set when this import persisted the document.
	NewInThisImport bool

	Scope Scope
}

// NewModelValue builds a value from a parsed document, taking identity and
// requirements from its first model entry.
func NewModelValue(set *nodeset.UANodeSet, raw []byte) (*ModelValue, error) {
	if set.Models == nil || len(set.Models.Model) == 0 {
		return nil, nodeset.ErrNoModel
	}
	entry := set.Models.Model[0]
	identity, err := IdentityFromEntry(entry)
	if err != nil {
		return nil, err
	}

	mv := &ModelValue{Identity: identity, NodeSet: set, Raw: raw}
	for _, req := range entry.RequiredModel {
		rid, err := IdentityFromEntry(req)
		if err != nil {
			return nil, err
		}
		mv.RequiredModels = append(mv.RequiredModels, rid)
		mv.Dependencies = append(mv.Dependencies, rid.ModelURI)
	}
	return mv, nil
}

// ImportResult accumulates the state of one dependency resolution.
type ImportResult struct {
	Models        []*ModelValue
	MissingModels []ModelIdentity
	ErrorMessage  string
	Extensions    map[string]any
}

// NewImportResult returns an empty result.
func NewImportResult() *ImportResult {
	return &ImportResult{Extensions: make(map[string]any)}
}

// Find returns the loaded model for uri, or nil.
func (r *ImportResult) Find(uri string) *ModelValue {
	for _, m := range r.Models {
		if m.Identity.ModelURI == uri {
			return m
		}
	}
	return nil
}

// Add records a model. A model already present for the same URI is replaced
// only by a newer publication.
func (r *ImportResult) Add(mv *ModelValue) {
	for i, m := range r.Models {
		if m.Identity.ModelURI != mv.Identity.ModelURI {
			continue
		}
		if mv.Identity.PublicationDate.After(m.Identity.PublicationDate) {
			mv.NewInThisImport = mv.NewInThisImport || m.NewInThisImport
			r.Models[i] = mv
		} else if mv.NewInThisImport {
			m.NewInThisImport = true
		}
		return
	}
	r.Models = append(r.Models, mv)
}

// Satisfied reports whether a loaded model satisfies the requirement.
func (r *ImportResult) Satisfied(req ModelIdentity) bool {
	m := r.Find(req.ModelURI)
	return m != nil && m.Identity.SameOrNewer(req)
}

// Succeeded reports whether resolution finished without missing models.
func (r *ImportResult) Succeeded() bool {
	return r.ErrorMessage == "" && len(r.MissingModels) == 0
}

// FormatMissing renders identities as a comma-joined list.
func FormatMissing(ids []ModelIdentity) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
