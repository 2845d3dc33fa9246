package conversion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanecrest/lanecrest/internal/quoting"
	"github.com/lanecrest/lanecrest/internal/sequence"
	"github.com/lanecrest/lanecrest/internal/shared"
)

type repoState struct {
	shipments       []Shipment
	items           []ShipmentItem
	charges         []ShipmentCharge
	invoices        []Invoice
	lines           []InvoiceLine
	convertedQuotes map[uuid.UUID]bool
}

func (s *repoState) clone() *repoState {
	c := &repoState{convertedQuotes: make(map[uuid.UUID]bool, len(s.convertedQuotes))}
	c.shipments = append(c.shipments, s.shipments...)
	c.items = append(c.items, s.items...)
	c.charges = append(c.charges, s.charges...)
	c.invoices = append(c.invoices, s.invoices...)
	c.lines = append(c.lines, s.lines...)
	for k, v := range s.convertedQuotes {
		c.convertedQuotes[k] = v
	}
	return c
}

type failureInjector struct {
	itemInserts int
	failItemAt  int
	lineInserts int
	failLineAt  int
}

type mockRepo struct {
	state *repoState
	fail  *failureInjector
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		state: &repoState{convertedQuotes: make(map[uuid.UUID]bool)},
		fail:  &failureInjector{},
	}
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	staged := m.state.clone()
	child := &mockRepo{state: staged, fail: m.fail}
	if err := fn(ctx, child); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *mockRepo) InsertShipment(_ context.Context, s Shipment) error {
	m.state.shipments = append(m.state.shipments, s)
	return nil
}

func (m *mockRepo) InsertShipmentItem(_ context.Context, it ShipmentItem) error {
	m.fail.itemInserts++
	if m.fail.failItemAt > 0 && m.fail.itemInserts == m.fail.failItemAt {
		return fmt.Errorf("item insert %d failed", m.fail.itemInserts)
	}
	m.state.items = append(m.state.items, it)
	return nil
}

func (m *mockRepo) InsertShipmentCharge(_ context.Context, c ShipmentCharge) error {
	m.state.charges = append(m.state.charges, c)
	return nil
}

func (m *mockRepo) GetShipment(_ context.Context, tenantID, id uuid.UUID) (*Shipment, error) {
	for _, s := range m.state.shipments {
		if s.ID == id && s.TenantID == tenantID {
			shipment := s
			for _, it := range m.state.items {
				if it.ShipmentID == id {
					shipment.Items = append(shipment.Items, it)
				}
			}
			for _, c := range m.state.charges {
				if c.ShipmentID == id {
					shipment.Charges = append(shipment.Charges, c)
				}
			}
			return &shipment, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) MarkQuoteConverted(_ context.Context, _, quoteID uuid.UUID) error {
	if m.state.convertedQuotes[quoteID] {
		return fmt.Errorf("quote already converted: %w", shared.ErrConflict)
	}
	m.state.convertedQuotes[quoteID] = true
	return nil
}

func (m *mockRepo) InsertInvoice(_ context.Context, inv Invoice) error {
	m.state.invoices = append(m.state.invoices, inv)
	return nil
}

func (m *mockRepo) InsertInvoiceLine(_ context.Context, line InvoiceLine) error {
	m.fail.lineInserts++
	if m.fail.failLineAt > 0 && m.fail.lineInserts == m.fail.failLineAt {
		return fmt.Errorf("line insert %d failed", m.fail.lineInserts)
	}
	m.state.lines = append(m.state.lines, line)
	return nil
}

func (m *mockRepo) GetInvoice(_ context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	for _, inv := range m.state.invoices {
		if inv.ID == id && inv.TenantID == tenantID {
			invoice := inv
			for _, line := range m.state.lines {
				if line.InvoiceID == id {
					invoice.Lines = append(invoice.Lines, line)
				}
			}
			return &invoice, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) InvoiceExistsForShipment(_ context.Context, shipmentID uuid.UUID) (bool, error) {
	for _, inv := range m.state.invoices {
		if inv.ShipmentID == shipmentID {
			return true, nil
		}
	}
	return false, nil
}

type quoteSource struct {
	quote   *quoting.Quote
	version *quoting.QuotationVersion
}

func (q *quoteSource) Get(_ context.Context, tenantID, id uuid.UUID) (*quoting.Quote, error) {
	if q.quote == nil || q.quote.ID != id || q.quote.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return q.quote, nil
}

func (q *quoteSource) GetVersion(_ context.Context, _, versionID uuid.UUID) (*quoting.QuotationVersion, error) {
	if q.version == nil || q.version.ID != versionID {
		return nil, shared.ErrNotFound
	}
	return q.version, nil
}

type rateSource map[string]decimal.Decimal

func (r rateSource) Rate(_ context.Context, _ uuid.UUID, hts string) (decimal.Decimal, error) {
	return r[hts], nil
}

type idemStore struct {
	keys map[string]bool
}

func (i *idemStore) CheckAndInsert(_ context.Context, key, _ string) error {
	if i.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	i.keys[key] = true
	return nil
}

func (i *idemStore) Delete(_ context.Context, key string) error {
	delete(i.keys, key)
	return nil
}

type seqRepo struct {
	counter int64
}

func (s *seqRepo) NextSeq(_ context.Context, _ uuid.UUID, _, _ string) (int64, error) {
	s.counter++
	return s.counter, nil
}

func (s *seqRepo) PeekSeq(_ context.Context, _ uuid.UUID, _, _ string) (int64, error) {
	return s.counter, nil
}

func (s *seqRepo) IsUnique(_ context.Context, _ uuid.UUID, _ string) (bool, error) {
	return true, nil
}

func (s *seqRepo) ScanMax(_ context.Context, _ uuid.UUID, _ string) (int64, error) {
	return 0, nil
}

type fixture struct {
	repo    *mockRepo
	quotes  *quoteSource
	rates   rateSource
	idem    *idemStore
	service *Service
	actor   shared.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		repo:   newMockRepo(),
		quotes: &quoteSource{},
		rates:  rateSource{},
		idem:   &idemStore{keys: make(map[string]bool)},
		actor:  shared.Actor{TenantID: uuid.New(), UserID: uuid.New()},
	}
	allocator := sequence.NewAllocator(&seqRepo{}, logger, nil)
	f.service = NewService(f.repo, f.quotes, f.rates, allocator, f.idem, nil, nil, logger, DefaultFeeConfig())
	return f
}

// seedAcceptedQuote builds an open quote with an accepted version whose
// selected option has an ocean leg, a truck leg and both charge sides.
func (f *fixture) seedAcceptedQuote(t *testing.T) *quoting.Quote {
	t.Helper()
	tenant := f.actor.TenantID
	quoteID := uuid.New()
	versionID := uuid.New()
	optionID := uuid.New()
	oceanLegID := uuid.New()
	truckLegID := uuid.New()

	option := quoting.Option{
		ID:         optionID,
		VersionID:  versionID,
		TenantID:   tenant,
		IsSelected: true,
		Currency:   "USD",
		Legs: []quoting.Leg{
			{
				ID: oceanLegID, OptionID: optionID, TenantID: tenant, SortOrder: 1, Mode: "ocean",
				Charges: []quoting.Charge{
					{ID: uuid.New(), TenantID: tenant, LegID: &oceanLegID, CategoryRef: "FRT", Side: quoting.SideSell, Amount: decimal.RequireFromString("1500.00"), Currency: "USD"},
					{ID: uuid.New(), TenantID: tenant, LegID: &oceanLegID, CategoryRef: "FRT", Side: quoting.SideBuy, Amount: decimal.RequireFromString("1200.00"), Currency: "USD"},
				},
			},
			{
				ID: truckLegID, OptionID: optionID, TenantID: tenant, SortOrder: 2, Mode: "truck",
				Charges: []quoting.Charge{
					{ID: uuid.New(), TenantID: tenant, LegID: &truckLegID, CategoryRef: "DRY", Side: quoting.SideSell, Amount: decimal.RequireFromString("600.50"), Currency: "USD"},
				},
			},
		},
		DirectCharges: []quoting.Charge{
			{ID: uuid.New(), TenantID: tenant, OptionID: &optionID, CategoryRef: "DOC", Side: quoting.SideSell, Amount: decimal.RequireFromString("45.00"), Currency: "USD"},
		},
	}
	version := quoting.QuotationVersion{
		ID:        versionID,
		QuoteID:   quoteID,
		VersionNo: 1,
		Status:    quoting.VersionStatusAccepted,
		Options:   []quoting.Option{option},
	}
	quote := &quoting.Quote{
		ID:          quoteID,
		TenantID:    tenant,
		QuoteNumber: "QT-202608-0001",
		Status:      quoting.QuoteStatusOpen,
		AccountRef:  "ACME",
		Currency:    "USD",
		Items: []quoting.QuoteItem{
			{ID: uuid.New(), QuoteID: quoteID, TenantID: tenant, Description: "widgets", Quantity: decimal.RequireFromString("10"), DeclaredValue: decimal.RequireFromString("60000"), Currency: "USD", HTSCode: "8471.30.0100"},
			{ID: uuid.New(), QuoteID: quoteID, TenantID: tenant, Description: "gadgets", Quantity: decimal.RequireFromString("5"), DeclaredValue: decimal.RequireFromString("40000"), Currency: "USD", HTSCode: "9503.00.0073"},
		},
		Versions: []quoting.QuotationVersion{{ID: versionID, QuoteID: quoteID, VersionNo: 1, Status: quoting.VersionStatusAccepted}},
	}
	f.quotes.quote = quote
	f.quotes.version = &version
	return quote
}

func TestConvertQuoteToShipmentCopiesSelectedOption(t *testing.T) {
	f := newFixture(t)
	quote := f.seedAcceptedQuote(t)

	shipment, err := f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.NoError(t, err)

	assert.Equal(t, quote.ID, shipment.QuoteID)
	assert.Equal(t, ShipmentStatusPlanned, shipment.Status)
	assert.Equal(t, "ocean", shipment.Mode)
	assert.True(t, shipment.OceanMove)
	assert.NotEmpty(t, shipment.ShipmentNumber)
	require.Len(t, shipment.Items, 2)

	// Only sell-side charges are billable on the shipment.
	require.Len(t, shipment.Charges, 3)
	total := decimal.Zero
	for _, c := range shipment.Charges {
		total = total.Add(c.Amount)
	}
	assert.True(t, total.Equal(decimal.RequireFromString("2145.50")), "charge total = %s", total)

	assert.True(t, f.repo.state.convertedQuotes[quote.ID])
}

func TestConvertQuoteRequiresSelectedOption(t *testing.T) {
	f := newFixture(t)
	quote := f.seedAcceptedQuote(t)
	f.quotes.version.Options[0].IsSelected = false

	_, err := f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	// The idempotency key is released so a corrected retry can run.
	assert.Empty(t, f.idem.keys)
}

func TestConvertQuoteTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	quote := f.seedAcceptedQuote(t)

	_, err := f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.NoError(t, err)

	_, err = f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Len(t, f.repo.state.shipments, 1)
}

func TestConvertQuoteRollsBackOnItemFailure(t *testing.T) {
	f := newFixture(t)
	quote := f.seedAcceptedQuote(t)
	f.repo.fail.failItemAt = 2

	_, err := f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.Error(t, err)

	assert.Empty(t, f.repo.state.shipments)
	assert.Empty(t, f.repo.state.items)
	assert.Empty(t, f.repo.state.charges)
	assert.False(t, f.repo.state.convertedQuotes[quote.ID])
	assert.Empty(t, f.idem.keys)
}

func TestCreateInvoiceConsolidatesCustomsFees(t *testing.T) {
	f := newFixture(t)
	quote := f.seedAcceptedQuote(t)
	f.rates["8471.30.0100"] = decimal.Zero
	f.rates["9503.00.0073"] = decimal.RequireFromString("0.065")

	shipment, err := f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.NoError(t, err)

	invoice, err := f.service.CreateInvoiceFromShipment(context.Background(), f.actor, shipment.ID)
	require.NoError(t, err)

	require.Len(t, invoice.Lines, 4)
	var feeLine *InvoiceLine
	for i := range invoice.Lines {
		if invoice.Lines[i].Description == feeLineDescription {
			feeLine = &invoice.Lines[i]
		}
	}
	require.NotNil(t, feeLine, "customs fee line missing")
	require.NotNil(t, feeLine.FeeMeta)

	// duty = 40000 * 0.065; mpf = 100000 * 0.003464; hmf = 100000 * 0.00125.
	meta := feeLine.FeeMeta
	assert.True(t, meta.Duty.Equal(decimal.RequireFromString("2600.00")), "duty = %s", meta.Duty)
	assert.True(t, meta.MPF.Equal(decimal.RequireFromString("346.40")), "mpf = %s", meta.MPF)
	assert.True(t, meta.HMF.Equal(decimal.RequireFromString("125.00")), "hmf = %s", meta.HMF)

	sum := meta.Duty.Add(meta.MPF).Add(meta.HMF)
	assert.True(t, feeLine.Amount.Sub(sum).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")),
		"fee line %s vs components %s", feeLine.Amount, sum)

	wantTotal := decimal.RequireFromString("2145.50").Add(sum)
	assert.True(t, invoice.TotalAmount.Equal(wantTotal), "invoice total = %s", invoice.TotalAmount)
}

func TestCreateInvoiceSkipsFeeLineWhenNoFees(t *testing.T) {
	f := newFixture(t)
	quote := f.seedAcceptedQuote(t)
	for i := range quote.Items {
		quote.Items[i].DeclaredValue = decimal.Zero
	}

	shipment, err := f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.NoError(t, err)

	invoice, err := f.service.CreateInvoiceFromShipment(context.Background(), f.actor, shipment.ID)
	require.NoError(t, err)

	require.Len(t, invoice.Lines, 3)
	for _, line := range invoice.Lines {
		assert.NotEqual(t, feeLineDescription, line.Description)
		assert.Nil(t, line.FeeMeta)
	}
}

func TestCreateInvoiceTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	quote := f.seedAcceptedQuote(t)

	shipment, err := f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.NoError(t, err)

	_, err = f.service.CreateInvoiceFromShipment(context.Background(), f.actor, shipment.ID)
	require.NoError(t, err)

	_, err = f.service.CreateInvoiceFromShipment(context.Background(), f.actor, shipment.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Len(t, f.repo.state.invoices, 1)
}

func TestCreateInvoiceRollsBackOnLineFailure(t *testing.T) {
	f := newFixture(t)
	quote := f.seedAcceptedQuote(t)

	shipment, err := f.service.ConvertQuoteToShipment(context.Background(), f.actor, quote.ID)
	require.NoError(t, err)

	f.repo.fail.failLineAt = 2
	_, err = f.service.CreateInvoiceFromShipment(context.Background(), f.actor, shipment.ID)
	require.Error(t, err)

	assert.Empty(t, f.repo.state.invoices)
	assert.Empty(t, f.repo.state.lines)
}
