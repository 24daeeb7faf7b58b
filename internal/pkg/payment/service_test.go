package payment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/internal/pkg/paypal"
	"github.com/FitLedger/FitLedger/internal/pkg/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu sync.Mutex

	status        string
	captureResult *paypal.CaptureResult
	createErr     error
	statusErr     error
	captureErr    error

	statusCalls  int
	captureCalls int
}

func (g *fakeGateway) CreateOrder(ctx context.Context, p paypal.CreateOrderParams) (*paypal.CreatedOrder, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &paypal.CreatedOrder{ProviderOrderID: "PP-1", ApprovalURL: "https://provider.test/approve/PP-1"}, nil
}

func (g *fakeGateway) GetOrderStatus(ctx context.Context, providerOrderID string) (string, error) {
	g.mu.Lock()
	g.statusCalls++
	g.mu.Unlock()
	if g.statusErr != nil {
		return "", g.statusErr
	}
	return g.status, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, providerOrderID string) (*paypal.CaptureResult, error) {
	g.mu.Lock()
	g.captureCalls++
	g.mu.Unlock()
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return g.captureResult, nil
}

// fakeRepo mimics the storage semantics of the GORM repository, including
// the terminal-state recheck under a lock, so race behavior can be tested
// without a database.
type fakeRepo struct {
	mu sync.Mutex

	nextID      uint
	orders      map[uint]*models.PaymentOrder
	plans       map[uint]*models.SubscriptionPlan
	markers     map[string]time.Time
	subs        []*models.UserSubscription
	donations   []*models.Donation
	planPointer map[uint]uint

	finalizeErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:      make(map[uint]*models.PaymentOrder),
		plans:       make(map[uint]*models.SubscriptionPlan),
		markers:     make(map[string]time.Time),
		planPointer: make(map[uint]uint),
	}
}

func (r *fakeRepo) CreateOrder(order *models.PaymentOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	order.CreatedAt = time.Now()
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *fakeRepo) GetOrderByPublicID(publicID string) (*models.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PublicID == publicID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *fakeRepo) SetProviderOrderID(orderID uint, providerOrderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.ProviderOrderID = &providerOrderID
	return nil
}

func (r *fakeRepo) GetPlan(planID uint) (*models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[planID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) HasProcessedRequest(requestID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.markers[requestID]
	return ok, nil
}

func (r *fakeRepo) FinalizeOrder(in FinalizeInput) (*FinalizeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalizeErr != nil {
		// Simulated mid-transaction failure: everything rolls back, nothing
		// below is applied.
		return nil, r.finalizeErr
	}

	order, ok := r.orders[in.OrderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPending {
		return &FinalizeOutcome{AlreadyTerminal: true, Status: order.Status}, nil
	}

	order.Status = models.OrderStatusCompleted
	order.ProviderTxnID = in.ProviderTxnID
	order.CompletedAt = &in.Now

	out := &FinalizeOutcome{Status: models.OrderStatusCompleted}
	switch order.Purpose {
	case models.OrderPurposeSubscription:
		for _, s := range r.subs {
			if s.UserID == order.UserID && s.Status == models.SubscriptionStatusActive {
				s.Status = models.SubscriptionStatusCancelled
				end := in.Now
				s.EndDate = &end
			}
		}
		end := in.Now.AddDate(0, 1, 0)
		sub := &models.UserSubscription{
			UserID:           order.UserID,
			PlanID:           *order.PlanID,
			Status:           models.SubscriptionStatusActive,
			StartDate:        in.Now,
			EndDate:          &end,
			PaymentProvider:  models.PaymentProviderPayPal,
			PaymentReference: in.ProviderTxnID,
		}
		r.subs = append(r.subs, sub)
		r.planPointer[order.UserID] = *order.PlanID
		out.Subscription = sub
	case models.OrderPurposeDonation:
		r.donations = append(r.donations, &models.Donation{
			PaymentOrderID: order.ID,
			UserID:         order.UserID,
			Amount:         order.Amount,
			Currency:       order.Currency,
			Message:        order.Message,
			DisplayName:    order.DisplayName,
		})
	}

	if in.RequestID != "" {
		r.markers[in.RequestID] = in.Now
	}
	return out, nil
}

func (r *fakeRepo) CancelOrder(in FinalizeInput) (*FinalizeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[in.OrderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPending {
		return &FinalizeOutcome{AlreadyTerminal: true, Status: order.Status}, nil
	}
	order.Status = models.OrderStatusCancelled
	if in.RequestID != "" {
		r.markers[in.RequestID] = in.Now
	}
	return &FinalizeOutcome{Status: models.OrderStatusCancelled}, nil
}

func (r *fakeRepo) activeSubsFor(userID uint) []*models.UserSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.UserSubscription
	for _, s := range r.subs {
		if s.UserID == userID && s.Status == models.SubscriptionStatusActive {
			out = append(out, s)
		}
	}
	return out
}

type fakeSnapshots struct{}

func (fakeSnapshots) GetEffectiveSubscription(ctx context.Context, userID uint) (*subscription.Snapshot, error) {
	return &subscription.Snapshot{PlanID: 3, PlanName: "Premium", Status: models.SubscriptionStatusActive}, nil
}

func newTestService(repo *fakeRepo, gw Gateway) *Service {
	svc := NewService(repo, gw, fakeSnapshots{})
	svc.publicBaseURL = "https://app.test"
	return svc
}

func seedPremiumPlan(repo *fakeRepo) {
	repo.plans[3] = &models.SubscriptionPlan{ID: 3, Name: "Premium", Price: 9.99, Currency: "EUR", AdvancedStats: true, AdFree: true}
	repo.plans[1] = &models.SubscriptionPlan{ID: 1, Name: "Free", IsDefault: true}
}

func TestCreateOrderValidation(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	svc := newTestService(repo, &fakeGateway{})
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateOrderInput
	}{
		{name: "zero amount", in: CreateOrderInput{UserID: 42, Amount: 0, Purpose: SubscriptionPurpose(3)}},
		{name: "negative amount", in: CreateOrderInput{UserID: 42, Amount: -1, Purpose: SubscriptionPurpose(3)}},
		{name: "unknown purpose", in: CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: Purpose{Kind: "gift"}}},
		{name: "unknown plan", in: CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(99)}},
		{name: "free plan not purchasable", in: CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(1)}},
		{name: "missing user", in: CreateOrderInput{Amount: 9.99, Purpose: SubscriptionPurpose(3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, tt.in)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}
	assert.Empty(t, repo.orders, "validation failures must not leave orders behind")
}

func TestCreateOrderSuccess(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	svc := newTestService(repo, &fakeGateway{})

	out, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:  42,
		Amount:  9.99,
		Purpose: SubscriptionPurpose(3),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.OrderID)
	assert.Equal(t, "PP-1", out.ProviderOrderID)
	assert.Equal(t, "https://provider.test/approve/PP-1", out.ApprovalURL)
	assert.Equal(t, models.OrderStatusPending, out.Status)

	stored, err := repo.GetOrderByPublicID(out.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	require.NotNil(t, stored.ProviderOrderID)
	assert.Equal(t, "PP-1", *stored.ProviderOrderID)
	assert.Equal(t, "EUR", stored.Currency)
}

func TestCreateOrderProviderFailureLeavesPendingRow(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{createErr: errors.New("connect timeout")}
	svc := newTestService(repo, gw)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:  42,
		Amount:  9.99,
		Purpose: SubscriptionPurpose(3),
	})
	var pErr *ProviderError
	require.ErrorAs(t, err, &pErr)

	// The orphaned pending row stays and can never transition on its own.
	require.Len(t, repo.orders, 1)
	for _, o := range repo.orders {
		assert.Equal(t, models.OrderStatusPending, o.Status)
		assert.Nil(t, o.ProviderOrderID)
	}
}

func TestReconcileCompletedSubscription(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCompleted}
	svc := newTestService(repo, gw)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	// Prior active subscription that must be superseded.
	oldEnd := now.Add(20 * 24 * time.Hour)
	oldSub := &models.UserSubscription{UserID: 42, PlanID: 2, Status: models.SubscriptionStatusActive, EndDate: &oldEnd}
	repo.subs = append(repo.subs, oldSub)

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	res, err := svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, res.FinalStatus)
	require.NotNil(t, res.Subscription)

	// Old row superseded, exactly one new active row.
	assert.Equal(t, models.SubscriptionStatusCancelled, oldSub.Status)
	assert.True(t, oldSub.EndDate.Equal(now))
	active := repo.activeSubsFor(42)
	require.Len(t, active, 1)
	assert.Equal(t, uint(3), active[0].PlanID)
	assert.True(t, active[0].EndDate.Equal(now.AddDate(0, 1, 0)))
	assert.Equal(t, uint(3), repo.planPointer[42])
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCompleted}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	first, err := svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)
	subsAfterFirst := len(repo.subs)
	statusCallsAfterFirst := gw.statusCalls

	second, err := svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)

	assert.Equal(t, first.FinalStatus, second.FinalStatus)
	assert.Len(t, repo.subs, subsAfterFirst, "no additional subscription rows on repeat")
	assert.Equal(t, statusCallsAfterFirst, gw.statusCalls, "terminal orders must not re-query the provider")
}

func TestReconcileApprovedTriggersCapture(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{
		status:        paypal.OrderStatusApproved,
		captureResult: &paypal.CaptureResult{Status: paypal.OrderStatusCompleted, TransactionID: "CAP-77"},
	}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 7, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	res, err := svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, res.FinalStatus)
	assert.Equal(t, 1, gw.captureCalls)

	stored, err := repo.GetOrderByPublicID(created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "CAP-77", stored.ProviderTxnID)
}

func TestReconcileIdempotencyKeySuppressesProviderCall(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCompleted}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	// The marker exists but the order write has not committed yet: exactly
	// the window where a duplicate redirect callback races the first one.
	repo.markers["req-1"] = time.Now()

	res, err := svc.Reconcile(ctx, created.OrderID, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, res.FinalStatus)
	assert.Zero(t, gw.statusCalls)
	assert.Empty(t, repo.subs)
}

func TestReconcileMarkerWrittenWithTransition(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCompleted}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	_, err = svc.Reconcile(ctx, created.OrderID, "req-9")
	require.NoError(t, err)
	_, seen := repo.markers["req-9"]
	assert.True(t, seen, "idempotency marker must persist with the transition")
}

func TestReconcileVoidedCancels(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusVoided}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	res, err := svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, res.FinalStatus)
	assert.Empty(t, repo.subs)

	stored, err := repo.GetOrderByPublicID(created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)
}

func TestReconcileNonTerminalProviderStatusStaysPending(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCreated}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	res, err := svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, res.FinalStatus)
	assert.Empty(t, repo.subs)
}

func TestReconcileCaptureTimeoutIsUnknownOutcome(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusApproved, captureErr: errors.New("timeout awaiting response")}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	_, err = svc.Reconcile(ctx, created.OrderID, "")
	var pErr *ProviderError
	require.ErrorAs(t, err, &pErr)

	// Never translated to completed: the order is pending and retriable.
	stored, err := repo.GetOrderByPublicID(created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.Empty(t, repo.subs)
}

func TestReconcileAtomicityUnderInjectedFailure(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCompleted}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	repo.finalizeErr = errors.New("deadlock found when trying to get lock")
	_, err = svc.Reconcile(ctx, created.OrderID, "")
	var perErr *PersistenceError
	require.ErrorAs(t, err, &perErr)

	// Neither half applied: order still pending, no subscription row.
	stored, err := repo.GetOrderByPublicID(created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.Empty(t, repo.subs)

	// After recovery the retry applies both halves.
	repo.finalizeErr = nil
	res, err := svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, res.FinalStatus)
	assert.Len(t, repo.activeSubsFor(42), 1)
}

func TestReconcileConcurrentDuplicates(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCompleted}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	const callers = 8
	results := make([]*ReconcileResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Reconcile(ctx, created.OrderID, "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, models.OrderStatusCompleted, results[i].FinalStatus)
	}
	// At most one caller performed the mutation.
	assert.Len(t, repo.subs, 1)
	assert.Len(t, repo.activeSubsFor(42), 1)
}

func TestReconcileDonation(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCompleted}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{
		UserID:  11,
		Amount:  5,
		Purpose: DonationPurpose("keep it up", "anon"),
	})
	require.NoError(t, err)

	res, err := svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, res.FinalStatus)
	assert.Nil(t, res.Subscription)
	require.Len(t, repo.donations, 1)
	assert.Equal(t, "keep it up", repo.donations[0].Message)
	assert.Empty(t, repo.subs)
}

func TestAbortPendingOrder(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)
	gw := &fakeGateway{status: paypal.OrderStatusCompleted}
	svc := newTestService(repo, gw)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	res, err := svc.Abort(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, res.FinalStatus)

	// A late reconcile after the abort reports the recorded state without
	// consulting the provider.
	res, err = svc.Reconcile(ctx, created.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, res.FinalStatus)
	assert.Zero(t, gw.statusCalls)
	assert.Empty(t, repo.subs)
}

func TestReconcileUnknownOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeGateway{})

	_, err := svc.Reconcile(context.Background(), "no-such-order", "")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCreateOrderEmbedsPublicIDInCallbacks(t *testing.T) {
	repo := newFakeRepo()
	seedPremiumPlan(repo)

	var gotParams paypal.CreateOrderParams
	gw := &recordingGateway{onCreate: func(p paypal.CreateOrderParams) { gotParams = p }}
	svc := newTestService(repo, gw)

	out, err := svc.CreateOrder(context.Background(), CreateOrderInput{UserID: 42, Amount: 9.99, Purpose: SubscriptionPurpose(3)})
	require.NoError(t, err)

	assert.Equal(t, out.OrderID, gotParams.ReferenceID)
	assert.True(t, strings.HasPrefix(gotParams.ReturnURL, "https://app.test/payments/return?order_id="))
	assert.Contains(t, gotParams.ReturnURL, out.OrderID)
	assert.Contains(t, gotParams.CancelURL, "/payments/cancel")
}

type recordingGateway struct {
	onCreate func(paypal.CreateOrderParams)
}

func (g *recordingGateway) CreateOrder(ctx context.Context, p paypal.CreateOrderParams) (*paypal.CreatedOrder, error) {
	if g.onCreate != nil {
		g.onCreate(p)
	}
	return &paypal.CreatedOrder{ProviderOrderID: "PP-REC", ApprovalURL: "https://provider.test/approve"}, nil
}

func (g *recordingGateway) GetOrderStatus(ctx context.Context, providerOrderID string) (string, error) {
	return paypal.OrderStatusCreated, nil
}

func (g *recordingGateway) CaptureOrder(ctx context.Context, providerOrderID string) (*paypal.CaptureResult, error) {
	return &paypal.CaptureResult{Status: paypal.OrderStatusCompleted}, nil
}
