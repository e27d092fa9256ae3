package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/nodeset"
)

var (
	// ErrUnknownNodeKind is returned for a node kind with no handler.
	ErrUnknownNodeKind = errors.New("profile: unknown node kind")

	// ErrUnresolvedReference is returned when a node links to a node that
	// neither the registry nor the builtin table knows.
	ErrUnresolvedReference = errors.New("profile: unresolved reference")

	// ErrUnresolvedDataType is returned when a variable or field data type
	// cannot be resolved.
	ErrUnresolvedDataType = errors.New("profile: unresolved data type")
)

// kindHandler holds the rules of one node kind. populate fills the item's
// links and children; postCreate runs once after the item was first
// created and reports whether it changed the item.
type kindHandler struct {
	itemKind   ItemKind
	populate   func(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) error
	postCreate func(ctx context.Context, p *Projector, tx *Transaction, n *graph.Node, item *ProfileItem) (bool, error)

	// delegate marks kinds that are projected through their owner.
	delegate bool
}

// Projector turns graph nodes into profile items.
type Projector struct {
	handlers map[graph.NodeKind]kindHandler
	logger   *slog.Logger
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithLogger sets the projector logger.
func WithLogger(logger *slog.Logger) ProjectorOption {
	return func(p *Projector) {
		p.logger = logger
	}
}

// NewProjector returns a projector with a handler for every node kind.
func NewProjector(opts ...ProjectorOption) *Projector {
	p := &Projector{
		handlers: map[graph.NodeKind]kindHandler{
			graph.KindObject:       {itemKind: ItemObject, populate: populateObject, postCreate: repairInstanceParent},
			graph.KindObjectType:   {itemKind: ItemClass, populate: populateObjectType},
			graph.KindInterface:    {itemKind: ItemInterface, populate: populateObjectType},
			graph.KindEventType:    {itemKind: ItemClass, populate: populateObjectType},
			graph.KindMethod:       {itemKind: ItemMethod, populate: populateMethod, postCreate: repairInstanceParent},
			graph.KindVariableType: {itemKind: ItemVariableType, populate: populateVariableType},
			graph.KindDataType:     {itemKind: ItemCustomDataType, populate: populateDataType, postCreate: registerDataTypeLookup},
			graph.KindDataVariable: {delegate: true},
			graph.KindProperty:     {delegate: true},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Project returns the item of a node, projecting and persisting it on first
// use within the transaction. Variables are represented by attributes, so
// projecting one returns the item of its nearest non-variable ancestor.
func (p *Projector) Project(ctx context.Context, tx *Transaction, n *graph.Node) (*ProfileItem, error) {
	h, ok := p.handlers[n.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeKind, n)
	}
	if h.delegate {
		owner, err := p.owner(tx, n)
		if err != nil {
			return nil, err
		}
		return p.Project(ctx, tx, owner)
	}

	key := KeyOf(n)
	if item, ok := tx.Item(key); ok {
		return item, nil
	}

	item := &ProfileItem{
		Key:             key,
		Kind:            h.itemKind,
		Name:            n.Name(),
		BrowseName:      n.BrowseName,
		BrowseNamespace: n.BrowseNamespace,
		SymbolicName:    n.SymbolicName,
		Description:     graph.FirstText(n.Description),
		Documentation:   n.Documentation,
		IsAbstract:      n.IsAbstract,
		ModelingRule:    n.ModelingRule,
		EventNotifier:   n.EventNotifier,
	}
	tx.remember(item)

	existing, err := tx.Store.CheckExisting(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check existing %s: %w", n, err)
	}
	if existing != nil {
		*item = *existing
		item.Key = key
		item.State = StateExisting
		return item, nil
	}

	profile, err := tx.profileFor(ctx, n.Namespace)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		item.ProfileID = profile.ID
	}
	for _, r := range n.OtherReferences {
		item.OtherReferences = append(item.OtherReferences, Reference(r))
	}

	if err := h.populate(ctx, p, tx, n, item); err != nil {
		return nil, err
	}

	id, created, err := tx.Store.Upsert(ctx, item, true)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", n, err)
	}
	item.ID = id
	if !created {
		item.State = StateUpdated
		return item, nil
	}
	item.State = StateCreated

	if h.postCreate == nil {
		return item, nil
	}
	changed, err := h.postCreate(ctx, p, tx, n, item)
	if err != nil {
		return nil, err
	}
	if changed {
		if _, _, err := tx.Store.Upsert(ctx, item, true); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", n, err)
		}
		item.State = StatePostProcessed
	}
	return item, nil
}

// ProjectNamespace projects every non-variable node of a model and then
// reports variables that no item accounts for.
func (p *Projector) ProjectNamespace(ctx context.Context, tx *Transaction, m *graph.NodeSetModel) error {
	p.logger.Debug("projecting namespace", "namespace", m.NamespaceURI, "nodes", len(m.Order))

	for _, n := range m.All() {
		if n.Kind.IsVariable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := p.Project(ctx, tx, n); err != nil {
			return fmt.Errorf("project %s: %w", m.NamespaceURI, err)
		}
	}
	if err := p.repairDeferred(ctx, tx); err != nil {
		return err
	}
	p.detectOrphans(tx, m)
	return nil
}

// repairDeferred sets instance parent ids that were unknown when their
// items were created.
func (p *Projector) repairDeferred(ctx context.Context, tx *Transaction) error {
	queued := tx.repairs
	tx.repairs = nil
	for _, key := range queued {
		item, ok := tx.Item(key)
		if !ok || item.InstanceParentID != "" {
			continue
		}
		parent, ok := tx.Item(*item.InstanceParent)
		if !ok || parent.ID == "" {
			p.logger.Debug("instance parent still unknown", "node", key.NodeID)
			continue
		}
		item.InstanceParentID = parent.ID
		if _, _, err := tx.Store.Upsert(ctx, item, true); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
		item.State = StatePostProcessed
	}
	return nil
}

// owner walks up from a variable to the first non-variable ancestor.
func (p *Projector) owner(tx *Transaction, n *graph.Node) (*graph.Node, error) {
	current := n
	for current.Kind.IsVariable() {
		if current.Parent == "" {
			return nil, fmt.Errorf("%w: variable %s has no owner", ErrUnresolvedReference, n)
		}
		parent, ok := tx.Registry.Lookup(current.Parent)
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of %s", ErrUnresolvedReference, current.Parent, n)
		}
		current = parent
	}
	return current, nil
}

// link projects the node behind id and returns its key. Core nodes are
// never projected: they are linked by key whether or not the core model is
// part of the transaction.
func (p *Projector) link(ctx context.Context, tx *Transaction, id string) (*ItemKey, error) {
	if id == "" {
		return nil, nil
	}
	uri := nodeset.NamespaceOf(id)
	if nodeset.IsCore(id) {
		if _, ok := tx.Registry.Lookup(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedReference, id)
		}
		return &ItemKey{NodeID: id, Namespace: nodeset.CoreNamespace}, nil
	}
	if m, ok := tx.Registry.Model(uri); ok {
		if n, ok := m.Node(id); ok {
			item, err := p.Project(ctx, tx, n)
			if err != nil {
				return nil, err
			}
			key := item.Key
			return &key, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolvedReference, id)
}
