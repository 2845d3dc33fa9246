package quoting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanecrest/lanecrest/internal/sequence"
	"github.com/lanecrest/lanecrest/internal/shared"
)

// repoState is the flat in-memory dataset behind the mock repository.
// WithTx stages a copy and only publishes it when the callback succeeds,
// mirroring transactional all-or-nothing behaviour.
type repoState struct {
	quotes   []Quote
	items    []QuoteItem
	cargo    []CargoConfig
	versions []QuotationVersion
	options  []Option
	legs     []Leg
	charges  []Charge
}

func (s *repoState) clone() *repoState {
	c := &repoState{}
	c.quotes = append(c.quotes, s.quotes...)
	c.items = append(c.items, s.items...)
	c.cargo = append(c.cargo, s.cargo...)
	c.versions = append(c.versions, s.versions...)
	c.options = append(c.options, s.options...)
	c.legs = append(c.legs, s.legs...)
	c.charges = append(c.charges, s.charges...)
	return c
}

// failureInjector is shared between the root repository and transactional
// children so call counters survive the staging copy.
type failureInjector struct {
	chargeInserts    int
	failChargeAt     int // fail the Nth InsertCharge, 0 disables
	insertVersionErr error
	lockErr          error
}

type mockRepo struct {
	state *repoState
	fail  *failureInjector

	// root holds the publish target while inside a transaction.
	root *mockRepo
}

func newMockRepo() *mockRepo {
	return &mockRepo{state: &repoState{}, fail: &failureInjector{}}
}

func (m *mockRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	staged := m.state.clone()
	child := &mockRepo{state: staged, fail: m.fail, root: m}
	if err := fn(ctx, child); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *mockRepo) GetQuote(_ context.Context, tenantID, id uuid.UUID) (*Quote, error) {
	for _, q := range m.state.quotes {
		if q.ID == id && q.TenantID == tenantID {
			quote := q
			for _, it := range m.state.items {
				if it.QuoteID == id {
					quote.Items = append(quote.Items, it)
				}
			}
			for _, cc := range m.state.cargo {
				if cc.QuoteID == id {
					quote.Cargo = append(quote.Cargo, cc)
				}
			}
			for _, v := range m.state.versions {
				if v.QuoteID == id {
					quote.Versions = append(quote.Versions, v)
				}
			}
			return &quote, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) GetQuoteByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Quote, error) {
	for _, q := range m.state.quotes {
		if q.TenantID == tenantID && q.QuoteNumber == number {
			return m.GetQuote(ctx, tenantID, q.ID)
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) List(_ context.Context, req ListQuotesRequest) ([]QuoteSummary, int, error) {
	var out []QuoteSummary
	for _, q := range m.state.quotes {
		if q.TenantID != req.TenantID {
			continue
		}
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, QuoteSummary{ID: q.ID, QuoteNumber: q.QuoteNumber, Status: q.Status, AccountRef: q.AccountRef, Currency: q.Currency, CreatedAt: q.CreatedAt})
	}
	return out, len(out), nil
}

func (m *mockRepo) InsertQuote(_ context.Context, q Quote) error {
	for _, existing := range m.state.quotes {
		if existing.TenantID == q.TenantID && existing.QuoteNumber == q.QuoteNumber {
			return fmt.Errorf("quote number taken: %w", shared.ErrConflict)
		}
	}
	q.CreatedAt = time.Now()
	m.state.quotes = append(m.state.quotes, q)
	return nil
}

func (m *mockRepo) UpdateQuoteHeader(_ context.Context, q Quote) error {
	for i, existing := range m.state.quotes {
		if existing.ID == q.ID && existing.TenantID == q.TenantID {
			existing.AccountRef = q.AccountRef
			existing.Currency = q.Currency
			existing.Incoterm = q.Incoterm
			existing.ServiceLevel = q.ServiceLevel
			existing.Origin = q.Origin
			existing.Destination = q.Destination
			m.state.quotes[i] = existing
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepo) UpdateQuoteStatus(_ context.Context, tenantID, id uuid.UUID, status QuoteStatus) error {
	for i, q := range m.state.quotes {
		if q.ID == id && q.TenantID == tenantID {
			m.state.quotes[i].Status = status
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepo) LockQuote(_ context.Context, tenantID, id uuid.UUID) error {
	if m.fail.lockErr != nil {
		return m.fail.lockErr
	}
	for _, q := range m.state.quotes {
		if q.ID == id && q.TenantID == tenantID {
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepo) NextVersionNo(_ context.Context, quoteID uuid.UUID) (int, error) {
	max := 0
	for _, v := range m.state.versions {
		if v.QuoteID == quoteID && v.VersionNo > max {
			max = v.VersionNo
		}
	}
	return max + 1, nil
}

func (m *mockRepo) InsertVersion(_ context.Context, v QuotationVersion) error {
	if m.fail.insertVersionErr != nil {
		return m.fail.insertVersionErr
	}
	v.CreatedAt = time.Now()
	m.state.versions = append(m.state.versions, v)
	return nil
}

func (m *mockRepo) GetVersion(_ context.Context, tenantID, versionID uuid.UUID) (*QuotationVersion, error) {
	for _, v := range m.state.versions {
		if v.ID != versionID {
			continue
		}
		version := v
		for _, o := range m.state.options {
			if o.VersionID != versionID {
				continue
			}
			if o.TenantID != tenantID {
				return nil, shared.ErrNotFound
			}
			option := o
			for _, l := range m.state.legs {
				if l.OptionID != o.ID {
					continue
				}
				leg := l
				for _, c := range m.state.charges {
					if c.LegID != nil && *c.LegID == l.ID {
						leg.Charges = append(leg.Charges, c)
					}
				}
				option.Legs = append(option.Legs, leg)
			}
			sort.Slice(option.Legs, func(i, j int) bool {
				return option.Legs[i].SortOrder < option.Legs[j].SortOrder
			})
			for _, c := range m.state.charges {
				if c.OptionID != nil && *c.OptionID == o.ID {
					option.DirectCharges = append(option.DirectCharges, c)
				}
			}
			version.Options = append(version.Options, option)
		}
		return &version, nil
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) UpdateVersionStatus(_ context.Context, versionID uuid.UUID, status VersionStatus, _ uuid.UUID, _ *string) error {
	for i, v := range m.state.versions {
		if v.ID == versionID {
			m.state.versions[i].Status = status
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepo) ListVersionsPastValidity(_ context.Context, now time.Time, limit int) ([]QuotationVersion, error) {
	var out []QuotationVersion
	for _, v := range m.state.versions {
		if v.Status == VersionStatusSent && v.ValidUntil != nil && v.ValidUntil.Before(now) {
			out = append(out, v)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockRepo) ReplaceItems(_ context.Context, quoteID, _ uuid.UUID, items []QuoteItem) error {
	kept := m.state.items[:0:0]
	for _, it := range m.state.items {
		if it.QuoteID != quoteID {
			kept = append(kept, it)
		}
	}
	m.state.items = append(kept, items...)
	return nil
}

func (m *mockRepo) ReplaceCargo(_ context.Context, quoteID uuid.UUID, cargo []CargoConfig) error {
	kept := m.state.cargo[:0:0]
	for _, cc := range m.state.cargo {
		if cc.QuoteID != quoteID {
			kept = append(kept, cc)
		}
	}
	m.state.cargo = append(kept, cargo...)
	return nil
}

func (m *mockRepo) DeleteVersionGraph(_ context.Context, versionID uuid.UUID) error {
	doomedOptions := make(map[uuid.UUID]bool)
	for _, o := range m.state.options {
		if o.VersionID == versionID {
			doomedOptions[o.ID] = true
		}
	}
	doomedLegs := make(map[uuid.UUID]bool)
	keptLegs := m.state.legs[:0:0]
	for _, l := range m.state.legs {
		if doomedOptions[l.OptionID] {
			doomedLegs[l.ID] = true
			continue
		}
		keptLegs = append(keptLegs, l)
	}
	m.state.legs = keptLegs

	keptCharges := m.state.charges[:0:0]
	for _, c := range m.state.charges {
		if c.LegID != nil && doomedLegs[*c.LegID] {
			continue
		}
		if c.OptionID != nil && doomedOptions[*c.OptionID] {
			continue
		}
		keptCharges = append(keptCharges, c)
	}
	m.state.charges = keptCharges

	keptOptions := m.state.options[:0:0]
	for _, o := range m.state.options {
		if !doomedOptions[o.ID] {
			keptOptions = append(keptOptions, o)
		}
	}
	m.state.options = keptOptions
	return nil
}

func (m *mockRepo) InsertOption(_ context.Context, o Option) error {
	o.Legs = nil
	o.DirectCharges = nil
	m.state.options = append(m.state.options, o)
	return nil
}

func (m *mockRepo) InsertLeg(_ context.Context, l Leg) error {
	l.Charges = nil
	m.state.legs = append(m.state.legs, l)
	return nil
}

func (m *mockRepo) InsertCharge(_ context.Context, c Charge) error {
	m.fail.chargeInserts++
	if m.fail.failChargeAt > 0 && m.fail.chargeInserts == m.fail.failChargeAt {
		return fmt.Errorf("charge insert %d failed", m.fail.chargeInserts)
	}
	m.state.charges = append(m.state.charges, c)
	return nil
}

func (m *mockRepo) ClearSelection(_ context.Context, versionID uuid.UUID) error {
	for i, o := range m.state.options {
		if o.VersionID == versionID {
			m.state.options[i].IsSelected = false
		}
	}
	return nil
}

func (m *mockRepo) SetSelectedOption(_ context.Context, versionID, optionID uuid.UUID) error {
	for i, o := range m.state.options {
		if o.VersionID == versionID && o.ID == optionID {
			m.state.options[i].IsSelected = true
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepo) PersistOptionTotal(_ context.Context, optionID uuid.UUID, total decimal.Decimal) error {
	for i, o := range m.state.options {
		if o.ID == optionID {
			m.state.options[i].TotalAmount = total
			return nil
		}
	}
	return shared.ErrNotFound
}

// seqRepo is a trivial counter backing the allocator in these tests.
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

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func newTestService(repo Repository) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	allocator := sequence.NewAllocator(&seqRepo{}, logger, nil)
	return NewService(repo, allocator, nil, logger)
}

func testActor() shared.Actor {
	return shared.Actor{TenantID: uuid.New(), UserID: uuid.New()}
}

func seedQuote(repo *mockRepo, actor shared.Actor, versionStatus VersionStatus) (uuid.UUID, uuid.UUID) {
	quoteID := uuid.New()
	versionID := uuid.New()
	repo.state.quotes = append(repo.state.quotes, Quote{
		ID:          quoteID,
		TenantID:    actor.TenantID,
		QuoteNumber: "QT-202608-0001",
		Status:      QuoteStatusDraft,
		AccountRef:  "ACME",
		Currency:    "USD",
		CreatedBy:   actor.UserID,
	})
	repo.state.versions = append(repo.state.versions, QuotationVersion{
		ID:        versionID,
		QuoteID:   quoteID,
		VersionNo: 1,
		Status:    versionStatus,
		CreatedBy: actor.UserID,
	})
	return quoteID, versionID
}

func saveFixture(t *testing.T, quoteID, versionID uuid.UUID) SaveQuotePayload {
	t.Helper()
	return SaveQuotePayload{
		QuoteID:   quoteID,
		VersionID: versionID,
		Header:    QuoteHeaderPayload{AccountRef: "ACME", Currency: "USD"},
		Items: []ItemPayload{
			{Description: "widgets", Quantity: dec(t, "10"), DeclaredValue: dec(t, "5000"), Currency: "USD", HTSCode: "8471.30.0100"},
		},
		Cargo: []CargoConfigPayload{
			{ContainerType: "40HC", Quantity: 1, WeightKg: dec(t, "12000"), VolumeM3: dec(t, "60")},
		},
		Options: []OptionPayload{
			{
				CarrierName: "Evergreen",
				Currency:    "USD",
				Legs: []LegPayload{
					{
						SortOrder:   1,
						Mode:        "ocean",
						Origin:      "CNSHA",
						Destination: "USLAX",
						BuyCharges: []ChargePayload{
							{CategoryRef: "FRT", Amount: dec(t, "1200.00"), Currency: "USD"},
						},
						SellCharges: []ChargePayload{
							{CategoryRef: "FRT", Amount: dec(t, "1500.00"), Currency: "USD"},
						},
					},
					{
						SortOrder:   2,
						Mode:        "truck",
						Origin:      "USLAX",
						Destination: "USCHI",
						SellCharges: []ChargePayload{
							{CategoryRef: "DRY", Amount: dec(t, "600.50"), Currency: "USD"},
						},
					},
				},
				SellCharges: []ChargePayload{
					{CategoryRef: "DOC", Amount: dec(t, "45.00"), Currency: "USD"},
				},
			},
		},
	}
}

func TestCreateQuoteAssignsNumberAndInitialVersion(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()

	quote, err := svc.CreateQuote(context.Background(), actor, CreateQuoteRequest{
		AccountRef: "ACME", Currency: "USD",
	})
	require.NoError(t, err)

	want := DefaultNumberFormat.Preview(1, time.Now())
	assert.Equal(t, want, quote.QuoteNumber)
	assert.Equal(t, QuoteStatusDraft, quote.Status)
	require.Len(t, quote.Versions, 1)
	assert.Equal(t, 1, quote.Versions[0].VersionNo)
	assert.Equal(t, VersionStatusDraft, quote.Versions[0].Status)
}

func TestCreateQuoteRejectsUnknownCurrency(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	_, err := svc.CreateQuote(context.Background(), testActor(), CreateQuoteRequest{
		AccountRef: "ACME", Currency: "XXZ",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, repo.state.quotes)
}

func TestSaveQuoteAtomicReplacesGraphAndComputesTotals(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	_, err := svc.SaveQuoteAtomic(context.Background(), actor, saveFixture(t, quoteID, versionID))
	require.NoError(t, err)

	version, err := svc.GetVersion(context.Background(), actor.TenantID, versionID)
	require.NoError(t, err)
	require.Len(t, version.Options, 1)

	option := version.Options[0]
	// 1200 + 1500 + 600.50 + 45 direct.
	assert.True(t, option.TotalAmount.Equal(dec(t, "3345.50")),
		"total = %s", option.TotalAmount)
	require.Len(t, option.Legs, 2)
	assert.Equal(t, 1, option.Legs[0].SortOrder)
	assert.Equal(t, 2, option.Legs[1].SortOrder)
	require.Len(t, option.DirectCharges, 1)

	// Saving again replaces rather than appends.
	_, err = svc.SaveQuoteAtomic(context.Background(), actor, saveFixture(t, quoteID, versionID))
	require.NoError(t, err)
	assert.Len(t, repo.state.options, 1)
	assert.Len(t, repo.state.legs, 2)
	assert.Len(t, repo.state.charges, 4)
	assert.Len(t, repo.state.items, 1)
	assert.Len(t, repo.state.cargo, 1)
}

func TestSaveQuoteAtomicRollsBackOnFailure(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	// Seed an existing graph that must survive the failed replacement.
	_, err := svc.SaveQuoteAtomic(context.Background(), actor, saveFixture(t, quoteID, versionID))
	require.NoError(t, err)
	before := repo.state.clone()

	repo.fail.failChargeAt = repo.fail.chargeInserts + 3
	_, err = svc.SaveQuoteAtomic(context.Background(), actor, saveFixture(t, quoteID, versionID))
	require.Error(t, err)

	assert.Equal(t, len(before.options), len(repo.state.options))
	assert.Equal(t, len(before.legs), len(repo.state.legs))
	assert.Equal(t, len(before.charges), len(repo.state.charges))
	assert.Equal(t, len(before.items), len(repo.state.items))
	for i := range before.charges {
		assert.Equal(t, before.charges[i].ID, repo.state.charges[i].ID)
	}
}

func TestSaveQuoteRejectsNonDraftVersion(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusSent)

	_, err := svc.SaveQuoteAtomic(context.Background(), actor, saveFixture(t, quoteID, versionID))
	var conflict *shared.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "sent", conflict.From)
}

func TestSaveQuoteRejectsNonContiguousSortOrders(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	payload := saveFixture(t, quoteID, versionID)
	payload.Options[0].Legs[1].SortOrder = 3

	_, err := svc.SaveQuoteAtomic(context.Background(), actor, payload)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSaveQuoteRejectsDuplicateSortOrders(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	payload := saveFixture(t, quoteID, versionID)
	payload.Options[0].Legs[1].SortOrder = 1

	_, err := svc.SaveQuoteAtomic(context.Background(), actor, payload)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSaveQuoteRejectsMixedCurrency(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	payload := saveFixture(t, quoteID, versionID)
	payload.Options[0].Legs[0].BuyCharges[0].Currency = "EUR"

	_, err := svc.SaveQuoteAtomic(context.Background(), actor, payload)
	var integrity *shared.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "mixed_currency", integrity.Kind)
}

func TestTransitionLifecycle(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	_, versionID := seedQuote(repo, actor, VersionStatusDraft)

	ctx := context.Background()
	for _, to := range []VersionStatus{
		VersionStatusInternalReview,
		VersionStatusApproved,
		VersionStatusSent,
		VersionStatusAccepted,
	} {
		version, err := svc.Transition(ctx, actor, versionID, to, "")
		require.NoError(t, err, "transition to %s", to)
		assert.Equal(t, to, version.Status)
	}
}

func TestTransitionRejectsIllegalStep(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	_, versionID := seedQuote(repo, actor, VersionStatusDraft)

	_, err := svc.Transition(context.Background(), actor, versionID, VersionStatusSent, "")
	var conflict *shared.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "draft", conflict.From)
	assert.Equal(t, "sent", conflict.To)

	// Terminal states allow nothing further.
	require.NoError(t, repo.UpdateVersionStatus(context.Background(), versionID, VersionStatusRejected, actor.UserID, nil))
	_, err = svc.Transition(context.Background(), actor, versionID, VersionStatusApproved, "")
	require.ErrorAs(t, err, &conflict)
}

func TestRecordCustomerSelectionClearsPrevious(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusSent)

	optionA := Option{ID: uuid.New(), VersionID: versionID, TenantID: actor.TenantID, CarrierName: "Evergreen", Currency: "USD", IsSelected: true}
	optionB := Option{ID: uuid.New(), VersionID: versionID, TenantID: actor.TenantID, CarrierName: "Maersk", Currency: "USD"}
	repo.state.options = append(repo.state.options, optionA, optionB)

	err := svc.RecordCustomerSelection(context.Background(), actor, quoteID, SelectionRequest{
		VersionID: versionID,
		OptionID:  optionB.ID,
		Reason:    "faster transit",
	})
	require.NoError(t, err)

	version, err := svc.GetVersion(context.Background(), actor.TenantID, versionID)
	require.NoError(t, err)
	assert.Equal(t, VersionStatusAccepted, version.Status)

	selected := 0
	for _, o := range version.Options {
		if o.IsSelected {
			selected++
			assert.Equal(t, optionB.ID, o.ID)
		}
	}
	assert.Equal(t, 1, selected)

	quote, err := svc.Get(context.Background(), actor.TenantID, quoteID)
	require.NoError(t, err)
	assert.Equal(t, QuoteStatusOpen, quote.Status)
}

func TestRecordCustomerSelectionRequiresSentVersion(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	option := Option{ID: uuid.New(), VersionID: versionID, TenantID: actor.TenantID, Currency: "USD"}
	repo.state.options = append(repo.state.options, option)

	err := svc.RecordCustomerSelection(context.Background(), actor, quoteID, SelectionRequest{
		VersionID: versionID,
		OptionID:  option.ID,
	})
	var conflict *shared.StateConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestCreateVersionClonesGraph(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	_, err := svc.SaveQuoteAtomic(context.Background(), actor, saveFixture(t, quoteID, versionID))
	require.NoError(t, err)

	// Mark an option selected to prove the clone drops selection.
	repo.state.options[0].IsSelected = true
	sourceOptionID := repo.state.options[0].ID

	clone, err := svc.CreateVersion(context.Background(), actor, quoteID, CreateVersionRequest{
		CloneFromVersionID: versionID,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, clone.VersionNo)
	assert.Equal(t, VersionStatusDraft, clone.Status)
	require.Len(t, clone.Options, 1)
	assert.NotEqual(t, sourceOptionID, clone.Options[0].ID)
	assert.False(t, clone.Options[0].IsSelected)
	require.Len(t, clone.Options[0].Legs, 2)
	require.Len(t, clone.Options[0].Legs[0].Charges, 2)
	require.Len(t, clone.Options[0].DirectCharges, 1)

	// The source version graph is untouched.
	source, err := svc.GetVersion(context.Background(), actor.TenantID, versionID)
	require.NoError(t, err)
	require.Len(t, source.Options, 1)
	assert.Equal(t, sourceOptionID, source.Options[0].ID)
}

func TestCreateVersionWithoutCloneStartsEmpty(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, _ := seedQuote(repo, actor, VersionStatusDraft)

	version, err := svc.CreateVersion(context.Background(), actor, quoteID, CreateVersionRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, version.VersionNo)
	assert.Empty(t, version.Options)
}

func TestExpireOverdueVersions(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	_, overdueID := seedQuote(repo, actor, VersionStatusSent)
	for i := range repo.state.versions {
		if repo.state.versions[i].ID == overdueID {
			repo.state.versions[i].ValidUntil = &past
		}
	}
	stillValid := QuotationVersion{
		ID: uuid.New(), QuoteID: uuid.New(), VersionNo: 1,
		Status: VersionStatusSent, ValidUntil: &future,
	}
	repo.state.versions = append(repo.state.versions, stillValid)

	expired, err := svc.ExpireOverdueVersions(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	for _, v := range repo.state.versions {
		switch v.ID {
		case overdueID:
			assert.Equal(t, VersionStatusExpired, v.Status)
		case stillValid.ID:
			assert.Equal(t, VersionStatusSent, v.Status)
		}
	}
}

func TestRefreshTotalsPersistsDrift(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	_, err := svc.SaveQuoteAtomic(context.Background(), actor, saveFixture(t, quoteID, versionID))
	require.NoError(t, err)

	repo.state.options[0].TotalAmount = dec(t, "1.00")
	require.NoError(t, svc.RefreshTotals(context.Background(), actor.TenantID, versionID))
	assert.True(t, repo.state.options[0].TotalAmount.Equal(dec(t, "3345.50")))
}

func TestVerifyTotalsFlagsStaleTotal(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	actor := testActor()
	quoteID, versionID := seedQuote(repo, actor, VersionStatusDraft)

	_, err := svc.SaveQuoteAtomic(context.Background(), actor, saveFixture(t, quoteID, versionID))
	require.NoError(t, err)
	require.NoError(t, svc.VerifyTotals(context.Background(), actor.TenantID, versionID))

	repo.state.options[0].TotalAmount = dec(t, "3345.70")
	err = svc.VerifyTotals(context.Background(), actor.TenantID, versionID)
	var integrity *shared.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "stale_total", integrity.Kind)
}
