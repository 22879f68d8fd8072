package merge

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/bramble/internal/platform/database"
	apperrors "github.com/dealdesk/bramble/pkg/errors"
	"github.com/dealdesk/bramble/pkg/models"
	"github.com/dealdesk/bramble/pkg/scoring"
)

// fakeTx satisfies database.Tx without a real connection.
type fakeTx struct {
	open       bool
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) IsOpen() bool { return t.open }

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.open = false
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.open = false
	t.rolledBack = true
	return nil
}

func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}
func (t *fakeTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}

type fakeTxBeginner struct {
	tx *fakeTx
}

func (f *fakeTxBeginner) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	f.tx = &fakeTx{open: true}
	return ctx, f.tx, nil
}

// fakeLeadStore holds leads in memory and can inject a failure at any step.
type fakeLeadStore struct {
	leads map[int64]*models.LeadSnapshot

	lockErr    error
	deleteErr  error
	recountErr error

	deleted   []int64
	recounted []int64
	touched   []int64
}

func (f *fakeLeadStore) GetSnapshot(ctx context.Context, id int64) (*models.LeadSnapshot, error) {
	snap, ok := f.leads[id]
	if !ok {
		return nil, apperrors.NewNotFoundf("lead %d not found", id)
	}
	copied := *snap
	return &copied, nil
}

func (f *fakeLeadStore) LockPair(ctx context.Context, primaryID, secondaryID int64) (*models.Lead, *models.Lead, error) {
	if f.lockErr != nil {
		return nil, nil, f.lockErr
	}
	p, ok := f.leads[primaryID]
	if !ok {
		return nil, nil, apperrors.NewNotFoundf("lead %d not found", primaryID)
	}
	s, ok := f.leads[secondaryID]
	if !ok {
		return nil, nil, apperrors.NewNotFoundf("lead %d not found", secondaryID)
	}
	return &p.Lead, &s.Lead, nil
}

func (f *fakeLeadStore) Delete(ctx context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

// RecountDisplayCounters mirrors the repository: counters come from the
// dependent tallies, not from increments.
func (f *fakeLeadStore) RecountDisplayCounters(ctx context.Context, id int64) error {
	if f.recountErr != nil {
		return f.recountErr
	}
	f.recounted = append(f.recounted, id)
	snap := f.leads[id]
	snap.ContactCount = snap.Counts.Contacts
	snap.NoteCount = snap.Counts.Notes
	snap.TaskCount = snap.Counts.Tasks
	snap.PhotoCount = snap.Counts.Photos
	snap.AgentCount = snap.Counts.Agents
	return nil
}

func (f *fakeLeadStore) TouchActivity(ctx context.Context, id int64) error {
	f.touched = append(f.touched, id)
	return nil
}

// fakeDependentStore moves dependent tallies between the lead store's
// snapshots and can fail on a named step.
type fakeDependentStore struct {
	leads    *fakeLeadStore
	failStep string
	moves    []string
}

// move transfers every listed tally from one snapshot to the other and
// reports the first as rows affected, matching the repository contract.
func (f *fakeDependentStore) move(step string, from, to int64, fields ...func(*models.RelatedCounts) *int) (int64, error) {
	if f.failStep == step {
		return 0, apperrors.NewMergeFailedf("injected failure at %s", step)
	}
	f.moves = append(f.moves, step)

	src, dst := f.leads.leads[from], f.leads.leads[to]
	var moved int64
	for i, field := range fields {
		n := *field(&src.Counts)
		*field(&dst.Counts) += n
		*field(&src.Counts) = 0
		if i == 0 {
			moved = int64(n)
		}
	}
	return moved, nil
}

// RepointContacts also carries phones and emails, which hang off the contact.
func (f *fakeDependentStore) RepointContacts(ctx context.Context, from, to int64) (int64, error) {
	return f.move("contacts", from, to,
		func(c *models.RelatedCounts) *int { return &c.Contacts },
		func(c *models.RelatedCounts) *int { return &c.Phones },
		func(c *models.RelatedCounts) *int { return &c.Emails })
}
func (f *fakeDependentStore) RepointNotes(ctx context.Context, from, to int64) (int64, error) {
	return f.move("notes", from, to, func(c *models.RelatedCounts) *int { return &c.Notes })
}
func (f *fakeDependentStore) RepointTasks(ctx context.Context, from, to int64) (int64, error) {
	return f.move("tasks", from, to, func(c *models.RelatedCounts) *int { return &c.Tasks })
}
func (f *fakeDependentStore) RepointPhotos(ctx context.Context, from, to int64) (int64, error) {
	return f.move("photos", from, to, func(c *models.RelatedCounts) *int { return &c.Photos })
}
func (f *fakeDependentStore) RepointVisits(ctx context.Context, from, to int64) (int64, error) {
	return f.move("visits", from, to, func(c *models.RelatedCounts) *int { return &c.Visits })
}
func (f *fakeDependentStore) RepointFamilyMembers(ctx context.Context, from, to int64) (int64, error) {
	return f.move("family_members", from, to, func(c *models.RelatedCounts) *int { return &c.FamilyMembers })
}
func (f *fakeDependentStore) RepointAgents(ctx context.Context, from, to int64) (int64, error) {
	return f.move("agents", from, to, func(c *models.RelatedCounts) *int { return &c.Agents })
}
func (f *fakeDependentStore) RepointTags(ctx context.Context, from, to int64) (int64, error) {
	return f.move("tags", from, to, func(c *models.RelatedCounts) *int { return &c.Tags })
}

type fakeHistoryStore struct {
	inserted []*models.MergeHistory
	err      error
}

func (f *fakeHistoryStore) Insert(ctx context.Context, h *models.MergeHistory) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, h)
	return nil
}

type fakeNotifier struct {
	merged []*models.MergeResult
	err    error
}

func (f *fakeNotifier) LeadMerged(ctx context.Context, result *models.MergeResult) error {
	if f.err != nil {
		return f.err
	}
	f.merged = append(f.merged, result)
	return nil
}

func strPtr(s string) *string { return &s }

func testSnapshot(id int64, counts models.RelatedCounts) *models.LeadSnapshot {
	return &models.LeadSnapshot{
		Lead: models.Lead{
			ID:              id,
			AddressLine1:    "123 Main St",
			City:            "Springfield",
			State:           "IL",
			Zipcode:         "62701",
			Owner1Name:      strPtr("John Smith"),
			LeadTemperature: models.TemperatureWarm,
			DeskStatus:      models.DeskStatusActive,
		},
		Counts: counts,
	}
}

type fixture struct {
	executor        *Executor
	txs             *fakeTxBeginner
	leads           *fakeLeadStore
	dependents      *fakeDependentStore
	history         *fakeHistoryStore
	notifier        *fakeNotifier
	secondaryCounts models.RelatedCounts
}

func newFixture() *fixture {
	secondaryCounts := models.RelatedCounts{
		Contacts: 2, Phones: 3, Emails: 1, Notes: 4, Tasks: 1,
		Photos: 2, Visits: 1, Agents: 1, FamilyMembers: 2, Tags: 3,
	}

	leads := &fakeLeadStore{leads: map[int64]*models.LeadSnapshot{
		1: testSnapshot(1, models.RelatedCounts{Contacts: 5, Notes: 5}),
		2: testSnapshot(2, secondaryCounts),
	}}

	scorer := scoring.NewScorer(scoring.DefaultConfig())
	scorer.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	f := &fixture{
		txs:             &fakeTxBeginner{},
		leads:           leads,
		dependents:      &fakeDependentStore{leads: leads},
		history:         &fakeHistoryStore{},
		notifier:        &fakeNotifier{},
		secondaryCounts: secondaryCounts,
	}
	f.executor = NewExecutor(f.txs, f.leads, f.dependents, f.history, scorer, f.notifier, logger)
	return f
}

func TestMerge_Success(t *testing.T) {
	f := newFixture()

	result, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.PrimaryID)
	assert.Equal(t, int64(2), result.SecondaryID)
	assert.True(t, result.AuditRecorded)

	// conservation: everything the secondary had is reported as moved
	assert.Equal(t, f.secondaryCounts, result.ItemsMerged)

	// destructiveness: the secondary is gone, the primary recounted
	assert.Equal(t, []int64{2}, f.leads.deleted)
	assert.Equal(t, []int64{1}, f.leads.recounted)
	assert.Equal(t, []int64{1}, f.leads.touched)

	// every display counter reflects the union, photos and agents included
	primary := f.leads.leads[1]
	assert.Equal(t, 7, primary.ContactCount)
	assert.Equal(t, 9, primary.NoteCount)
	assert.Equal(t, 1, primary.TaskCount)
	assert.Equal(t, 2, primary.PhotoCount)
	assert.Equal(t, 1, primary.AgentCount)

	require.NotNil(t, f.txs.tx)
	assert.True(t, f.txs.tx.committed)
	assert.False(t, f.txs.tx.rolledBack)

	require.Len(t, f.history.inserted, 1)
	assert.Equal(t, int64(1), f.history.inserted[0].PrimaryLeadID)
	require.Len(t, f.notifier.merged, 1)
}

func TestMerge_SelfMergeRejected(t *testing.T) {
	f := newFixture()

	_, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 1})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidPair, apperrors.Code(err))
}

func TestMerge_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 99})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.Code(err))
}

func TestMerge_LowConfidenceRejected(t *testing.T) {
	f := newFixture()

	// make the pair look nothing alike
	other := testSnapshot(2, models.RelatedCounts{})
	other.AddressLine1 = "99 Totally Different Rd"
	other.Zipcode = "60601"
	other.Owner1Name = strPtr("Someone Else")
	f.leads.leads[2] = other

	_, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 2})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeLowConfidenceRejected, apperrors.Code(err))
	assert.Empty(t, f.leads.deleted)

	t.Run("override forces it through", func(t *testing.T) {
		result, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 2, Override: true})
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, f.leads.deleted)
		assert.NotNil(t, result)
	})
}

func TestMerge_ConcurrentModification(t *testing.T) {
	f := newFixture()
	f.leads.lockErr = apperrors.NewConcurrentModificationf("lead 2 is locked by another operation")

	_, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 2})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConcurrentModification, apperrors.Code(err))
	assert.True(t, f.txs.tx.rolledBack)
	assert.Empty(t, f.leads.deleted)
}

func TestMerge_AtomicityOnInjectedFailure(t *testing.T) {
	for _, step := range []string{"contacts", "notes", "tasks", "photos", "visits", "family_members", "agents", "tags"} {
		t.Run("fails at "+step, func(t *testing.T) {
			f := newFixture()
			f.dependents.failStep = step

			_, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 2})
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeMergeFailed, apperrors.Code(err))

			assert.True(t, f.txs.tx.rolledBack, "transaction must roll back")
			assert.False(t, f.txs.tx.committed)
			assert.Empty(t, f.leads.deleted, "secondary must survive a failed merge")
			assert.Empty(t, f.history.inserted, "no audit row for a failed merge")
			assert.Empty(t, f.notifier.merged, "no event for a failed merge")
		})
	}
}

func TestMerge_DeleteFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.leads.deleteErr = apperrors.NewMergeFailedf("injected delete failure")

	_, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 2})
	require.Error(t, err)
	assert.True(t, f.txs.tx.rolledBack)
	assert.Empty(t, f.leads.recounted)
}

func TestMerge_AuditFailureDoesNotUndoMerge(t *testing.T) {
	f := newFixture()
	f.history.err = errors.New("audit db down")

	result, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 2})
	require.NoError(t, err)

	assert.False(t, result.AuditRecorded)
	assert.True(t, f.txs.tx.committed)
	assert.Equal(t, []int64{2}, f.leads.deleted)
	// the event still goes out
	assert.Len(t, f.notifier.merged, 1)
}

func TestMerge_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("kafka down")

	result, err := f.executor.Merge(context.Background(), models.MergeRequest{PrimaryID: 1, SecondaryID: 2})
	require.NoError(t, err)
	assert.True(t, result.AuditRecorded)
}

func TestPlanner_Plan(t *testing.T) {
	f := newFixture()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	planner := NewPlanner(f.leads, logger)

	t.Run("reports secondary counts", func(t *testing.T) {
		plan, err := planner.Plan(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.Equal(t, f.leads.leads[2].Counts, plan.Transfers)
		assert.Equal(t, int64(1), plan.PrimaryID)
		assert.NotEmpty(t, plan.PrimaryAddress)
	})

	t.Run("self pair rejected", func(t *testing.T) {
		_, err := planner.Plan(context.Background(), 1, 1)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInvalidPair, apperrors.Code(err))
	})

	t.Run("missing lead", func(t *testing.T) {
		_, err := planner.Plan(context.Background(), 1, 42)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.Code(err))
	})

	t.Run("plan is read-only", func(t *testing.T) {
		_, err := planner.Plan(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.Empty(t, f.leads.deleted)
	})
}
