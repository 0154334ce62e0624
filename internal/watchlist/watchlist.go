// Package watchlist manages a user's tracked instruments. The list itself is
// owned by the external document store; this package edits it in memory and
// persists through the Store interface. Refreshes run sequentially so one slow
// or failing lookup delays but never aborts the remainder.
package watchlist

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/finboard/finboard/internal/marketdata"
	"github.com/finboard/finboard/internal/observ"
)

// Document is the per-user record held by the external document store.
type Document struct {
	UserID    string                         `json:"user_id"`
	Name      string                         `json:"name"`
	Email     string                         `json:"email"`
	AvatarURL string                         `json:"avatar_url"`
	Stocks    []marketdata.TrackedInstrument `json:"tracked_stocks"`
	Cryptos   []marketdata.TrackedInstrument `json:"tracked_cryptos"`
}

// Store is the external identity/document-store collaborator.
type Store interface {
	Load(ctx context.Context, userID string) (Document, error)
	Save(ctx context.Context, userID string, doc Document) error
}

// Kind selects which tracked array an edit applies to.
type Kind string

const (
	KindStock  Kind = "stock"
	KindCrypto Kind = "crypto"
)

// securityQuoter and cryptoPricer are the lookup operations refreshes need.
type securityQuoter interface {
	Quote(ctx context.Context, symbol string) (marketdata.Quote, error)
}

type cryptoPricer interface {
	Price(ctx context.Context, ticker string) (marketdata.Quote, error)
}

// Manager edits and refreshes watchlists.
type Manager struct {
	store      Store
	securities securityQuoter
	crypto     cryptoPricer
	log        zerolog.Logger
}

// NewManager wires a Manager to its store and lookup services.
func NewManager(store Store, securities securityQuoter, crypto cryptoPricer, log zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		securities: securities,
		crypto:     crypto,
		log:        log.With().Str("component", "watchlist").Logger(),
	}
}

// Add appends an instrument to the user's list. Ids are unique within a list;
// adding an existing id replaces the entry in place instead.
func (m *Manager) Add(ctx context.Context, userID string, kind Kind, inst marketdata.TrackedInstrument) error {
	if inst.ID == "" {
		return fmt.Errorf("instrument id is required")
	}
	doc, err := m.store.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	list := m.listFor(&doc, kind)
	replaced := false
	for i := range *list {
		if (*list)[i].ID == inst.ID {
			(*list)[i] = inst
			replaced = true
			break
		}
	}
	if !replaced {
		*list = append(*list, inst)
	}

	if err := m.store.Save(ctx, userID, doc); err != nil {
		return fmt.Errorf("save watchlist: %w", err)
	}
	m.log.Info().Str("user", userID).Str("kind", string(kind)).Str("id", inst.ID).
		Bool("replaced", replaced).Msg("instrument added")
	return nil
}

// Remove deletes the instrument with the given id, preserving list order.
// Removing an absent id is a no-op.
func (m *Manager) Remove(ctx context.Context, userID string, kind Kind, id string) error {
	doc, err := m.store.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	list := m.listFor(&doc, kind)
	kept := (*list)[:0]
	for _, inst := range *list {
		if inst.ID != id {
			kept = append(kept, inst)
		}
	}
	*list = kept

	if err := m.store.Save(ctx, userID, doc); err != nil {
		return fmt.Errorf("save watchlist: %w", err)
	}
	return nil
}

// ItemError records one failed refresh within a batch.
type ItemError struct {
	ID  string
	Err error
}

// RefreshSummary reports the outcome of a RefreshAll pass.
type RefreshSummary struct {
	Refreshed int
	Failed    []ItemError
}

// RefreshAll re-fetches quotes for every tracked instrument, sequentially,
// updating entries in place by id. Per-item errors are aggregated into the
// summary rather than aborting the batch. The updated document is saved even
// when some items failed, so successful refreshes are never lost.
func (m *Manager) RefreshAll(ctx context.Context, userID string) (RefreshSummary, error) {
	doc, err := m.store.Load(ctx, userID)
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("load watchlist: %w", err)
	}

	var summary RefreshSummary
	for i := range doc.Stocks {
		q, err := m.securities.Quote(ctx, doc.Stocks[i].Symbol)
		if err != nil {
			summary.Failed = append(summary.Failed, ItemError{ID: doc.Stocks[i].ID, Err: err})
			m.log.Warn().Str("user", userID).Str("id", doc.Stocks[i].ID).Err(err).Msg("stock refresh failed")
			continue
		}
		applyQuote(&doc.Stocks[i], q)
		summary.Refreshed++
	}
	for i := range doc.Cryptos {
		q, err := m.crypto.Price(ctx, doc.Cryptos[i].ID)
		if err != nil {
			summary.Failed = append(summary.Failed, ItemError{ID: doc.Cryptos[i].ID, Err: err})
			m.log.Warn().Str("user", userID).Str("id", doc.Cryptos[i].ID).Err(err).Msg("crypto refresh failed")
			continue
		}
		applyQuote(&doc.Cryptos[i], q)
		summary.Refreshed++
	}

	if err := m.store.Save(ctx, userID, doc); err != nil {
		return summary, fmt.Errorf("save watchlist: %w", err)
	}

	observ.IncCounterBy("watchlist_refreshed_total", map[string]string{}, int64(summary.Refreshed))
	observ.IncCounterBy("watchlist_refresh_failed_total", map[string]string{}, int64(len(summary.Failed)))
	m.log.Info().Str("user", userID).Int("refreshed", summary.Refreshed).
		Int("failed", len(summary.Failed)).Msg("watchlist refresh completed")
	return summary, nil
}

func applyQuote(inst *marketdata.TrackedInstrument, q marketdata.Quote) {
	inst.Price = q.Price
	inst.Change = q.Change
	inst.Volume = q.Volume
	inst.MarketCap = q.MarketCap
	inst.PE = q.PE
	if inst.Name == "" && q.Name != "" {
		inst.Name = q.Name
	}
}

func (m *Manager) listFor(doc *Document, kind Kind) *[]marketdata.TrackedInstrument {
	if kind == KindCrypto {
		return &doc.Cryptos
	}
	return &doc.Stocks
}
