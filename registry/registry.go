// Package registry shares imported model versions between designer
// instances through etcd.
//
// Every successful import publishes one record per model it persisted.
// Other instances can look up the newest known version of a namespace, list
// everything published, or watch for new publications. The exporter uses a
// registry as a version source when a namespace was imported elsewhere.
//
// Records are stored under /{namespace}/models/{escaped model uri}/{date}
// as JSON and are not bound to a lease: a published model stays known after
// the publishing instance exits.
package registry

import (
	"context"
	"time"

	"github.com/cesmii/profiledesigner/model"
)

// ModelRecord describes one published model version.
type ModelRecord struct {
	// ModelURI is the namespace URI of the model.
	ModelURI string `json:"model_uri"`

	Version         string    `json:"version"`
	PublicationDate time.Time `json:"publication_date"`

	// Tenant is empty for globally visible models.
	Tenant string `json:"tenant,omitempty"`

	// CacheKey locates the document in the publishing instance's cache.
	CacheKey string `json:"cache_key,omitempty"`

	// RequiredModels lists the namespace URIs the model depends on.
	RequiredModels []string `json:"required_models,omitempty"`

	// Instance identifies the publishing designer instance.
	Instance    string    `json:"instance"`
	PublishedAt time.Time `json:"published_at"`
}

// RecordFromValue builds the record for an imported model.
func RecordFromValue(mv *model.ModelValue, instance string) ModelRecord {
	return ModelRecord{
		ModelURI:        mv.Identity.ModelURI,
		Version:         mv.Identity.Version,
		PublicationDate: mv.Identity.PublicationDate,
		Tenant:          mv.Scope.Tenant,
		CacheKey:        mv.CacheKey,
		RequiredModels:  append([]string(nil), mv.Dependencies...),
		Instance:        instance,
		PublishedAt:     time.Now().UTC(),
	}
}

// Identity returns the model identity of the record.
func (r ModelRecord) Identity() model.ModelIdentity {
	return model.ModelIdentity{
		ModelURI:        r.ModelURI,
		Version:         r.Version,
		PublicationDate: r.PublicationDate,
		CacheKey:        r.CacheKey,
	}
}

// Registry publishes and discovers model versions.
//
// Implementations must be safe for concurrent use.
type Registry interface {
	// Publish stores a record. Publishing the same model URI and
	// publication date again replaces the earlier record.
	Publish(ctx context.Context, rec ModelRecord) error

	// Lookup returns the newest record for a model URI, or nil when none
	// is published.
	Lookup(ctx context.Context, uri string) (*ModelRecord, error)

	// List returns every published record ordered by model URI and
	// publication date.
	List(ctx context.Context) ([]ModelRecord, error)

	// Watch sends the full record list now and again after every change.
	// The channel is closed when ctx is canceled or the registry is closed.
	Watch(ctx context.Context) (<-chan []ModelRecord, error)

	// ModelVersion reports the newest published identity of a namespace.
	ModelVersion(ctx context.Context, uri string) (model.ModelIdentity, bool, error)

	// Close releases the connection and stops all watches.
	Close() error
}

// Config holds the etcd connection settings.
type Config struct {
	// Endpoints is the list of etcd endpoints, "host:port".
	Endpoints []string `yaml:"endpoints"`

	// Namespace is the key prefix. Default: "profiledesigner".
	Namespace string `yaml:"namespace"`

	// DialTimeout bounds the initial connection. Default: 5s.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// TLS enables mutual TLS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds client certificate paths in PEM format.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}
