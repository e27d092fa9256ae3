package graph

import (
	"context"
	"sync"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// NodeSetModel is the graph of one namespace.
type NodeSetModel struct {
	Identity     model.ModelIdentity
	NamespaceURI string

	Nodes map[string]*Node

	// Order lists node ids in document order.
	Order []string

	// Aliases maps alias names to expanded ids.
	Aliases map[string]string

	Namespaces     nodeset.NamespaceTable
	RequiredModels []model.ModelIdentity
}

// NewNodeSetModel returns an empty model for identity.
func NewNodeSetModel(identity model.ModelIdentity) *NodeSetModel {
	return &NodeSetModel{
		Identity:     identity,
		NamespaceURI: identity.ModelURI,
		Nodes:        make(map[string]*Node),
		Aliases:      make(map[string]string),
	}
}

// Node returns the node with the expanded id.
func (m *NodeSetModel) Node(id string) (*Node, bool) {
	n, ok := m.Nodes[id]
	return n, ok
}

// add stores a node, keeping document order.
func (m *NodeSetModel) add(n *Node) {
	if _, exists := m.Nodes[n.NodeID]; !exists {
		m.Order = append(m.Order, n.NodeID)
	}
	m.Nodes[n.NodeID] = n
}

// NodesOfKind returns the nodes of the given kinds in document order.
func (m *NodeSetModel) NodesOfKind(kinds ...NodeKind) []*Node {
	var out []*Node
	for _, id := range m.Order {
		n := m.Nodes[id]
		for _, k := range kinds {
			if n.Kind == k {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// All returns every node in document order.
func (m *NodeSetModel) All() []*Node {
	out := make([]*Node, 0, len(m.Order))
	for _, id := range m.Order {
		out = append(out, m.Nodes[id])
	}
	return out
}

// Registry maps namespace URIs to imported models for one transaction.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*NodeSetModel
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*NodeSetModel)}
}

// Register adds a model, replacing any model for the same namespace.
func (r *Registry) Register(m *NodeSetModel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.NamespaceURI]; !exists {
		r.order = append(r.order, m.NamespaceURI)
	}
	r.models[m.NamespaceURI] = m
}

// Model returns the model of a namespace.
func (r *Registry) Model(uri string) (*NodeSetModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[uri]
	return m, ok
}

// Models returns the registered models in registration order.
func (r *Registry) Models() []*NodeSetModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*NodeSetModel, 0, len(r.order))
	for _, uri := range r.order {
		out = append(out, r.models[uri])
	}
	return out
}

// HasNamespace reports whether a namespace can be resolved. The core
// namespace always can, through the builtin table.
func (r *Registry) HasNamespace(uri string) bool {
	if uri == nodeset.CoreNamespace {
		return true
	}
	_, ok := r.Model(uri)
	return ok
}

// Lookup resolves an expanded id. Core ids missing from a loaded core model
// fall back to the builtin table.
func (r *Registry) Lookup(id string) (*Node, bool) {
	uri := nodeset.NamespaceOf(id)
	if m, ok := r.Model(uri); ok {
		if n, ok := m.Node(id); ok {
			return n, true
		}
	}
	if uri == nodeset.CoreNamespace {
		return BuiltinNode(id)
	}
	return nil, false
}

// DerivesFrom reports whether the type id equals ancestor or has it in its
// supertype chain.
func (r *Registry) DerivesFrom(id, ancestor string) bool {
	return derivesFrom(r.Lookup, id, ancestor)
}

// ModelVersion implements the exporter's version lookup.
func (r *Registry) ModelVersion(_ context.Context, uri string) (model.ModelIdentity, bool, error) {
	m, ok := r.Model(uri)
	if !ok {
		return model.ModelIdentity{}, false, nil
	}
	return m.Identity, true, nil
}

func derivesFrom(lookup func(string) (*Node, bool), id, ancestor string) bool {
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		if id == ancestor {
			return true
		}
		seen[id] = true
		n, ok := lookup(id)
		if !ok {
			return false
		}
		id = n.SuperType
	}
	return false
}
