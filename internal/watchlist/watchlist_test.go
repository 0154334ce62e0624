package watchlist

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/marketdata"
)

type memStore struct {
	docs  map[string]Document
	saves int
}

func newMemStore() *memStore { return &memStore{docs: map[string]Document{}} }

func (s *memStore) Load(ctx context.Context, userID string) (Document, error) {
	return s.docs[userID], nil
}

func (s *memStore) Save(ctx context.Context, userID string, doc Document) error {
	s.docs[userID] = doc
	s.saves++
	return nil
}

type fakeQuoter struct {
	quotes map[string]marketdata.Quote
	calls  []string
}

func (f *fakeQuoter) Quote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	f.calls = append(f.calls, symbol)
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return marketdata.Quote{}, marketdata.NewNotFoundError(symbol, "no quote data returned")
}

type fakePricer struct {
	prices map[string]marketdata.Quote
}

func (f *fakePricer) Price(ctx context.Context, ticker string) (marketdata.Quote, error) {
	if q, ok := f.prices[ticker]; ok {
		return q, nil
	}
	return marketdata.Quote{}, marketdata.NewNotFoundError(ticker, "no price data returned")
}

func TestManager_AddUniqueAndReplace(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, &fakeQuoter{}, &fakePricer{}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "u1", KindStock, marketdata.TrackedInstrument{ID: "AAPL", Symbol: "AAPL"}))
	require.NoError(t, m.Add(ctx, "u1", KindStock, marketdata.TrackedInstrument{ID: "MSFT", Symbol: "MSFT"}))

	// Re-adding an existing id replaces in place, keeping order and uniqueness.
	require.NoError(t, m.Add(ctx, "u1", KindStock, marketdata.TrackedInstrument{ID: "AAPL", Symbol: "AAPL", Name: "Apple"}))

	doc := store.docs["u1"]
	require.Len(t, doc.Stocks, 2)
	assert.Equal(t, "AAPL", doc.Stocks[0].ID)
	assert.Equal(t, "Apple", doc.Stocks[0].Name)
	assert.Equal(t, "MSFT", doc.Stocks[1].ID)
}

func TestManager_AddRequiresID(t *testing.T) {
	m := NewManager(newMemStore(), &fakeQuoter{}, &fakePricer{}, zerolog.Nop())
	err := m.Add(context.Background(), "u1", KindStock, marketdata.TrackedInstrument{Symbol: "AAPL"})
	assert.Error(t, err)
}

func TestManager_RemovePreservesOrder(t *testing.T) {
	store := newMemStore()
	store.docs["u1"] = Document{Stocks: []marketdata.TrackedInstrument{
		{ID: "AAPL"}, {ID: "MSFT"}, {ID: "NVDA"},
	}}
	m := NewManager(store, &fakeQuoter{}, &fakePricer{}, zerolog.Nop())

	require.NoError(t, m.Remove(context.Background(), "u1", KindStock, "MSFT"))

	doc := store.docs["u1"]
	require.Len(t, doc.Stocks, 2)
	assert.Equal(t, "AAPL", doc.Stocks[0].ID)
	assert.Equal(t, "NVDA", doc.Stocks[1].ID)

	// Removing an absent id is a no-op.
	require.NoError(t, m.Remove(context.Background(), "u1", KindStock, "GONE"))
	assert.Len(t, store.docs["u1"].Stocks, 2)
}

func TestManager_RefreshAllAggregatesErrors(t *testing.T) {
	store := newMemStore()
	store.docs["u1"] = Document{
		Stocks: []marketdata.TrackedInstrument{
			{ID: "AAPL", Symbol: "AAPL"},
			{ID: "BROKEN", Symbol: "BROKEN"},
			{ID: "MSFT", Symbol: "MSFT"},
		},
		Cryptos: []marketdata.TrackedInstrument{
			{ID: "bitcoin", Symbol: "BTC"},
		},
	}

	quoter := &fakeQuoter{quotes: map[string]marketdata.Quote{
		"AAPL": {Symbol: "AAPL", Name: "Apple Inc.", Price: 190.5, Change: 1.2},
		"MSFT": {Symbol: "MSFT", Price: 410.0, Change: -0.4},
	}}
	pricer := &fakePricer{prices: map[string]marketdata.Quote{
		"bitcoin": {Symbol: "bitcoin", Price: 67000.5, Change: -1.7},
	}}

	m := NewManager(store, quoter, pricer, zerolog.Nop())
	summary, err := m.RefreshAll(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Refreshed)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "BROKEN", summary.Failed[0].ID)
	assert.True(t, marketdata.IsKind(summary.Failed[0].Err, marketdata.KindNotFound))

	// A failing item must not stop later items from refreshing.
	assert.Equal(t, []string{"AAPL", "BROKEN", "MSFT"}, quoter.calls)

	// Successful updates were applied in place and persisted.
	doc := store.docs["u1"]
	assert.Equal(t, 190.5, doc.Stocks[0].Price)
	assert.Equal(t, "Apple Inc.", doc.Stocks[0].Name)
	assert.Equal(t, 410.0, doc.Stocks[2].Price)
	assert.Equal(t, 67000.5, doc.Cryptos[0].Price)
	assert.Equal(t, 1, store.saves)
}
