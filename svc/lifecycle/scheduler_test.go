package lifecycle_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/application"
	"github.com/dmitrymomot/sobernest/pkg/listing"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
	"github.com/dmitrymomot/sobernest/pkg/notifications"
	"github.com/dmitrymomot/sobernest/pkg/reminder"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
	"github.com/dmitrymomot/sobernest/pkg/user"
	"github.com/dmitrymomot/sobernest/pkg/workflow"
	"github.com/dmitrymomot/sobernest/svc/lifecycle"
)

type fakeMailer struct {
	mu          sync.Mutex
	renewals    int
	hidden      []int
	moveIns     []uuid.UUID
	failRenewal int
}

func (m *fakeMailer) SendRenewalReminder(context.Context, user.User, subscription.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRenewal > 0 {
		m.failRenewal--
		return errors.New("postmark: 503")
	}
	m.renewals++
	return nil
}

func (m *fakeMailer) SendListingsHidden(_ context.Context, _ user.User, hidden int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden = append(m.hidden, hidden)
	return nil
}

func (m *fakeMailer) SendMoveInReminder(_ context.Context, _ user.User, app application.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moveIns = append(m.moveIns, app.ID)
	return nil
}

func (m *fakeMailer) Renewals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renewals
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []notifications.Kind
}

func (n *recordingNotifier) Notify(_ context.Context, notif notifications.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, notif.Kind)
}

// crashingStore fails the next failSaves saves, simulating a process dying
// after the listings were hidden.
type crashingStore struct {
	*subscription.MemoryStore
	failSaves int
	panicList bool
}

func (s *crashingStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("connection reset")
	}
	return s.MemoryStore.Save(ctx, sub)
}

func (s *crashingStore) ListDueForReminder(ctx context.Context, now time.Time, lookahead time.Duration) ([]subscription.Subscription, error) {
	if s.panicList {
		panic("nil map write")
	}
	return s.MemoryStore.ListDueForReminder(ctx, now, lookahead)
}

type fixture struct {
	subs      *crashingStore
	apps      *application.MemoryStore
	users     *user.MemoryStore
	listings  *listing.MemoryStore
	mailer    *fakeMailer
	notifier  *recordingNotifier
	now       time.Time
	provider  user.User
	tenant    user.User
	scheduler *lifecycle.Scheduler
}

func newFixture(t *testing.T, opts ...lifecycle.Option) *fixture {
	t.Helper()

	f := &fixture{
		subs:     &crashingStore{MemoryStore: subscription.NewMemoryStore()},
		apps:     application.NewMemoryStore(),
		mailer:   &fakeMailer{},
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 2, 25, 9, 0, 0, 0, time.UTC),
		provider: user.User{ID: uuid.New(), Email: "p@hopehouse.test", Name: "Hope House", Role: user.RoleProvider, BillingCustomerID: "cus_1"},
		tenant:   user.User{ID: uuid.New(), Email: "t@example.test", Name: "Sam", Role: user.RoleTenant},
	}
	f.users = user.NewMemoryStore(f.provider, f.tenant)
	f.listings = listing.NewMemoryStore(
		listing.Listing{ID: uuid.New(), ProviderID: f.provider.ID, IsVisible: true, Published: true},
		listing.Listing{ID: uuid.New(), ProviderID: f.provider.ID, IsVisible: true, Published: true},
	)

	base := []lifecycle.Option{
		lifecycle.WithClock(func() time.Time { return f.now }),
		lifecycle.WithLogger(slog.New(slog.DiscardHandler)),
		lifecycle.WithNotifier(f.notifier),
	}
	f.scheduler = lifecycle.NewScheduler(lifecycle.Config{}, f.subs, f.apps, f.users, listing.NewGate(f.listings), f.mailer, append(base, opts...)...)
	return f
}

func (f *fixture) save(t *testing.T, sub subscription.Subscription) {
	t.Helper()
	require.NoError(t, f.subs.MemoryStore.Save(context.Background(), &sub))
}

func (f *fixture) sub(t *testing.T) *subscription.Subscription {
	t.Helper()
	sub, err := f.subs.Get(context.Background(), f.provider.ID)
	require.NoError(t, err)
	return sub
}

func (f *fixture) visible() int {
	n := 0
	for _, l := range f.listings.ByProvider(f.provider.ID) {
		if l.IsVisible {
			n++
		}
	}
	return n
}

func report(reports []lifecycle.PassReport, name string) lifecycle.PassReport {
	for _, r := range reports {
		if r.Name == name {
			return r
		}
	}
	return lifecycle.PassReport{}
}

func ptr(t time.Time) *time.Time { return &t }

func graceSub(providerID uuid.UUID, endsAt time.Time) subscription.Subscription {
	return subscription.Subscription{
		ProviderID:        providerID,
		Status:            subscription.StatusGracePeriod,
		ListingAllowance:  2,
		GracePeriodEndsAt: &endsAt,
		CanceledAt:        ptr(endsAt.Add(-7 * 24 * time.Hour)),
	}
}

func TestScheduler_GraceExpiryHidesListingsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.save(t, graceSub(f.provider.ID, f.now.Add(-time.Hour)))

	reports := f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 1, report(reports, lifecycle.PassGraceExpiry).Processed)
	assert.Equal(t, subscription.StatusCanceled, f.sub(t).Status)
	assert.Zero(t, f.visible())
	assert.Equal(t, []int{2}, f.mailer.hidden)
	assert.Equal(t, []notifications.Kind{notifications.KindListingsHidden}, f.notifier.kinds)

	writes, saves := f.listings.Writes(), f.subs.Saves()
	f.now = f.now.Add(time.Hour)
	reports = f.scheduler.RunOnce(context.Background())
	assert.Zero(t, report(reports, lifecycle.PassGraceExpiry).Processed)
	assert.Equal(t, writes, f.listings.Writes())
	assert.Equal(t, saves, f.subs.Saves())
	assert.Len(t, f.mailer.hidden, 1)
}

func TestScheduler_GraceNotYetExpired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.save(t, graceSub(f.provider.ID, f.now.Add(time.Minute)))

	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, subscription.StatusGracePeriod, f.sub(t).Status)
	assert.Equal(t, 2, f.visible())
}

func TestScheduler_CrashBetweenHideAndSaveSelfHeals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.save(t, graceSub(f.provider.ID, f.now.Add(-time.Hour)))
	f.subs.failSaves = 1

	reports := f.scheduler.RunOnce(context.Background())
	rep := report(reports, lifecycle.PassGraceExpiry)
	assert.Equal(t, 1, rep.Failed)
	assert.NoError(t, rep.Err, "item failures do not fail the pass")
	assert.Zero(t, f.visible(), "listings hidden by the first write")
	assert.Equal(t, subscription.StatusGracePeriod, f.sub(t).Status, "second write lost")
	assert.Empty(t, f.mailer.hidden)

	f.now = f.now.Add(time.Hour)
	f.scheduler.RunOnce(context.Background())
	assert.Equal(t, subscription.StatusCanceled, f.sub(t).Status)
	assert.Zero(t, f.visible())
	assert.Len(t, f.mailer.hidden, 1)
}

func TestScheduler_RenewalReminder(t *testing.T) {
	t.Parallel()

	t.Run("sent once per cycle", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.save(t, subscription.Subscription{
			ProviderID:       f.provider.ID,
			Status:           subscription.StatusActive,
			ListingAllowance: 1,
			CurrentPeriodEnd: ptr(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		})

		f.scheduler.RunOnce(context.Background())
		assert.Equal(t, 1, f.mailer.Renewals())
		assert.Equal(t, reminder.Sent, f.sub(t).RenewalReminder)

		for range 3 {
			f.now = f.now.Add(time.Hour)
			f.scheduler.RunOnce(context.Background())
		}
		assert.Equal(t, 1, f.mailer.Renewals())

		// A payment opens a new cycle.
		sub := f.sub(t)
		_, err := sub.RecordPayment(f.now, ptr(f.now.Add(48*time.Hour)))
		require.NoError(t, err)
		f.save(t, *sub)

		f.scheduler.RunOnce(context.Background())
		assert.Equal(t, 2, f.mailer.Renewals())
	})

	t.Run("failed send is retried next tick", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.mailer.failRenewal = 1
		f.save(t, subscription.Subscription{
			ProviderID:       f.provider.ID,
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: ptr(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		})

		reports := f.scheduler.RunOnce(context.Background())
		assert.Equal(t, 1, report(reports, lifecycle.PassRenewalReminders).Failed)
		assert.Equal(t, reminder.Pending, f.sub(t).RenewalReminder)

		f.now = f.now.Add(time.Hour)
		reports = f.scheduler.RunOnce(context.Background())
		assert.Equal(t, 1, report(reports, lifecycle.PassRenewalReminders).Processed)
		assert.Equal(t, reminder.Sent, f.sub(t).RenewalReminder)
	})

	t.Run("outside window", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.save(t, subscription.Subscription{
			ProviderID:       f.provider.ID,
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: ptr(f.now.Add(30 * 24 * time.Hour)),
		})
		f.scheduler.RunOnce(context.Background())
		assert.Zero(t, f.mailer.Renewals())
	})
}

func TestScheduler_MoveInReminders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	soon := application.Application{
		ID: uuid.New(), TenantID: f.tenant.ID, ListingID: uuid.New(), ListingTitle: "Oak House",
		Status: application.StatusApproved, MoveInDate: ptr(f.now.Add(48 * time.Hour)),
	}
	later := soon
	later.ID = uuid.New()
	later.MoveInDate = ptr(f.now.Add(5 * 24 * time.Hour))
	pending := soon
	pending.ID = uuid.New()
	pending.Status = application.StatusPending
	f.apps.Put(soon)
	f.apps.Put(later)
	f.apps.Put(pending)

	reports := f.scheduler.RunOnce(context.Background())
	assert.Equal(t, 1, report(reports, lifecycle.PassMoveInReminders).Processed)
	assert.Equal(t, []uuid.UUID{soon.ID}, f.mailer.moveIns)

	got, err := f.apps.Get(soon.ID)
	require.NoError(t, err)
	assert.True(t, got.MoveInReminder.IsSent())

	f.now = f.now.Add(time.Hour)
	f.scheduler.RunOnce(context.Background())
	assert.Len(t, f.mailer.moveIns, 1)
}

func TestScheduler_PassesAreFaultIsolated(t *testing.T) {
	t.Parallel()

	reg, m := metrics.NewRegistry()
	f := newFixture(t, lifecycle.WithMetrics(m))
	f.subs.panicList = true
	f.save(t, graceSub(f.provider.ID, f.now.Add(-time.Hour)))

	var reports []lifecycle.PassReport
	require.NotPanics(t, func() { reports = f.scheduler.RunOnce(context.Background()) })
	require.Len(t, reports, 4)

	assert.ErrorIs(t, report(reports, lifecycle.PassRenewalReminders).Err, lifecycle.ErrPassPanicked)
	assert.NoError(t, report(reports, lifecycle.PassGraceExpiry).Err)
	assert.Equal(t, 1, report(reports, lifecycle.PassGraceExpiry).Processed)
	assert.Equal(t, subscription.StatusCanceled, f.sub(t).Status)

	count, err := testutil.GatherAndCount(reg, "sobernest_scheduler_pass_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

type fakeAdvancer struct {
	res workflow.AdvanceResult
	err error
}

func (a fakeAdvancer) AdvanceDue(context.Context) (workflow.AdvanceResult, error) {
	return a.res, a.err
}

func TestScheduler_WorkflowPass(t *testing.T) {
	t.Parallel()

	f := newFixture(t, lifecycle.WithWorkflows(fakeAdvancer{res: workflow.AdvanceResult{Sent: 2, Completed: 1, Failed: 1}}))
	rep := report(f.scheduler.RunOnce(context.Background()), lifecycle.PassWorkflowSteps)
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, 1, rep.Failed)

	boom := errors.New("db down")
	f = newFixture(t, lifecycle.WithWorkflows(fakeAdvancer{err: boom}))
	rep = report(f.scheduler.RunOnce(context.Background()), lifecycle.PassWorkflowSteps)
	assert.ErrorIs(t, rep.Err, boom)
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.save(t, subscription.Subscription{
		ProviderID:       f.provider.ID,
		Status:           subscription.StatusActive,
		CurrentPeriodEnd: ptr(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
	})

	require.NoError(t, f.scheduler.Start(context.Background()))
	assert.ErrorIs(t, f.scheduler.Start(context.Background()), lifecycle.ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return f.mailer.Renewals() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.scheduler.Stop(ctx))
}
