package profile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cesmii/profiledesigner/graph"
)

// Transaction is the state of one import: the namespace registry, the
// store and the arena of projected items. It is not safe for concurrent use.
type Transaction struct {
	ID       string
	Registry *graph.Registry
	Store    Store

	items    map[ItemKey]*ProfileItem
	order    []ItemKey
	profiles map[string]*Profile
	warnings []Warning
	logger   *slog.Logger

	// repairs lists items whose instance parent had no id when they were
	// created.
	repairs []ItemKey
}

// TransactionOption configures a Transaction.
type TransactionOption func(*Transaction)

// WithTransactionLogger sets the transaction logger.
func WithTransactionLogger(logger *slog.Logger) TransactionOption {
	return func(tx *Transaction) {
		tx.logger = logger
	}
}

// WithTransactionID sets the transaction id.
func WithTransactionID(id string) TransactionOption {
	return func(tx *Transaction) {
		tx.ID = id
	}
}

// NewTransaction starts a transaction over reg and store.
func NewTransaction(reg *graph.Registry, store Store, opts ...TransactionOption) *Transaction {
	tx := &Transaction{
		ID:       uuid.New().String(),
		Registry: reg,
		Store:    store,
		items:    make(map[ItemKey]*ProfileItem),
		profiles: make(map[string]*Profile),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(tx)
	}
	tx.logger = tx.logger.With("transaction", tx.ID)
	return tx
}

// Item returns the projected item with the key.
func (tx *Transaction) Item(key ItemKey) (*ProfileItem, bool) {
	item, ok := tx.items[key]
	return item, ok
}

// Items returns every projected item in projection order.
func (tx *Transaction) Items() []*ProfileItem {
	out := make([]*ProfileItem, 0, len(tx.order))
	for _, key := range tx.order {
		out = append(out, tx.items[key])
	}
	return out
}

// Warnings returns the non-fatal findings so far.
func (tx *Transaction) Warnings() []Warning {
	return tx.warnings
}

// SetProfile records the profile owning a namespace.
func (tx *Transaction) SetProfile(p *Profile) {
	tx.profiles[p.Namespace] = p
}

// remember places an item in the arena.
func (tx *Transaction) remember(item *ProfileItem) {
	if _, exists := tx.items[item.Key]; !exists {
		tx.order = append(tx.order, item.Key)
	}
	tx.items[item.Key] = item
}

func (tx *Transaction) warn(w Warning) {
	tx.warnings = append(tx.warnings, w)
	tx.logger.Warn(w.Message, "node", w.NodeID, "name", w.Name, "parent", w.Parent)
}

// profileFor returns the profile of a namespace from the transaction or
// the store.
func (tx *Transaction) profileFor(ctx context.Context, uri string) (*Profile, error) {
	if p, ok := tx.profiles[uri]; ok {
		return p, nil
	}
	p, err := tx.Store.GetProfileForNamespace(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("get profile for %s: %w", uri, err)
	}
	tx.profiles[uri] = p
	return p, nil
}
