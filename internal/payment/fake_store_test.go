package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/farmbridge/internal/db"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
)

// memRepo emulates the Postgres queries the payment package relies on,
// including the status='pending' guard on transitions.
type memRepo struct {
	mu       sync.Mutex
	users    map[[16]byte]dbgen.User
	listings map[[16]byte]dbgen.Listing
	payments map[string]dbgen.Payment
	events   []dbgen.InsertWebhookEventParams
	now      func() time.Time
	txCount  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    map[[16]byte]dbgen.User{},
		listings: map[[16]byte]dbgen.Listing{},
		payments: map[string]dbgen.Payment{},
		now:      time.Now,
	}
}

func (m *memRepo) addUser(name, email string, role dbgen.UserRole) dbgen.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := dbgen.User{ID: db.NewUUID(), Name: name, Email: email, Role: role, CreatedAt: db.Timestamptz(m.now())}
	m.users[u.ID.Bytes] = u
	return u
}

func (m *memRepo) addListing(supplier dbgen.User, item string, price string) dbgen.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := dbgen.Listing{
		ID:          db.NewUUID(),
		SupplierID:  supplier.ID,
		ItemName:    item,
		Quantity:    "10 bags",
		Price:       db.Numeric(decimal.RequireFromString(price)),
		Currency:    db.Text("NGN"),
		Contact:     "0800",
		IsAvailable: true,
		CreatedAt:   db.Timestamptz(m.now()),
	}
	m.listings[l.ID.Bytes] = l
	return l
}

func (m *memRepo) addPayment(ref string, amount string, buyer dbgen.User, listing dbgen.Listing, status dbgen.PaymentStatus, createdAt time.Time) dbgen.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := dbgen.Payment{
		ID:                   db.NewUUID(),
		TransactionReference: ref,
		Amount:               db.Numeric(decimal.RequireFromString(amount)),
		Currency:             "NGN",
		Status:               status,
		SupplierID:           listing.SupplierID,
		BuyerID:              buyer.ID,
		ListingID:            listing.ID,
		CreatedAt:            db.Timestamptz(createdAt),
	}
	m.payments[ref] = p
	return p
}

func (m *memRepo) payment(ref string) dbgen.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[ref]
}

func (m *memRepo) listing(id pgtype.UUID) dbgen.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings[id.Bytes]
}

func (m *memRepo) eventLog() []dbgen.InsertWebhookEventParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dbgen.InsertWebhookEventParams(nil), m.events...)
}

// InTx serialises transactions and restores the previous state when fn fails.
func (m *memRepo) InTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	payments := make(map[string]dbgen.Payment, len(m.payments))
	for k, v := range m.payments {
		payments[k] = v
	}
	listings := make(map[[16]byte]dbgen.Listing, len(m.listings))
	for k, v := range m.listings {
		listings[k] = v
	}
	if err := fn(txStore{m}); err != nil {
		m.payments = payments
		m.listings = listings
		return err
	}
	return nil
}

func (m *memRepo) GetUserByID(ctx context.Context, id pgtype.UUID) (dbgen.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.GetUserByID(ctx, id)
}

func (m *memRepo) GetAvailableListingWithSupplier(ctx context.Context, id pgtype.UUID) (dbgen.ListingWithSupplierRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.GetAvailableListingWithSupplier(ctx, id)
}

func (m *memRepo) CreatePayment(ctx context.Context, arg dbgen.CreatePaymentParams) (dbgen.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.CreatePayment(ctx, arg)
}

func (m *memRepo) GetPaymentByReference(ctx context.Context, ref string) (dbgen.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.GetPaymentByReference(ctx, ref)
}

func (m *memRepo) GetPaymentDetail(ctx context.Context, ref string) (dbgen.PaymentDetailRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.GetPaymentDetail(ctx, ref)
}

func (m *memRepo) TransitionPendingPayment(ctx context.Context, arg dbgen.TransitionPendingPaymentParams) (dbgen.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.TransitionPendingPayment(ctx, arg)
}

func (m *memRepo) MarkListingUnavailable(ctx context.Context, id pgtype.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.MarkListingUnavailable(ctx, id)
}

func (m *memRepo) ListPaymentsByBuyer(ctx context.Context, arg dbgen.ListPaymentsByBuyerParams) ([]dbgen.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.ListPaymentsByBuyer(ctx, arg)
}

func (m *memRepo) ListStalePendingPayments(ctx context.Context, arg dbgen.ListStalePendingPaymentsParams) ([]dbgen.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.ListStalePendingPayments(ctx, arg)
}

func (m *memRepo) InsertWebhookEvent(ctx context.Context, arg dbgen.InsertWebhookEventParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return txStore{m}.InsertWebhookEvent(ctx, arg)
}

// txStore operates on memRepo with the lock already held.
type txStore struct{ m *memRepo }

func (s txStore) GetUserByID(_ context.Context, id pgtype.UUID) (dbgen.User, error) {
	u, ok := s.m.users[id.Bytes]
	if !ok {
		return dbgen.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s txStore) GetAvailableListingWithSupplier(_ context.Context, id pgtype.UUID) (dbgen.ListingWithSupplierRow, error) {
	l, ok := s.m.listings[id.Bytes]
	if !ok || !l.IsAvailable {
		return dbgen.ListingWithSupplierRow{}, pgx.ErrNoRows
	}
	return dbgen.ListingWithSupplierRow{Listing: l, SupplierName: s.m.users[l.SupplierID.Bytes].Name}, nil
}

func (s txStore) CreatePayment(_ context.Context, arg dbgen.CreatePaymentParams) (dbgen.Payment, error) {
	p := dbgen.Payment{
		ID:                   db.NewUUID(),
		TransactionReference: arg.TransactionReference,
		Amount:               arg.Amount,
		Currency:             arg.Currency,
		Status:               dbgen.PaymentStatusPending,
		SupplierID:           arg.SupplierID,
		BuyerID:              arg.BuyerID,
		ListingID:            arg.ListingID,
		CreatedAt:            db.Timestamptz(s.m.now()),
	}
	s.m.payments[p.TransactionReference] = p
	return p, nil
}

func (s txStore) GetPaymentByReference(_ context.Context, ref string) (dbgen.Payment, error) {
	p, ok := s.m.payments[ref]
	if !ok {
		return dbgen.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s txStore) GetPaymentDetail(_ context.Context, ref string) (dbgen.PaymentDetailRow, error) {
	p, ok := s.m.payments[ref]
	if !ok {
		return dbgen.PaymentDetailRow{}, pgx.ErrNoRows
	}
	return dbgen.PaymentDetailRow{
		Payment:      p,
		ItemName:     s.m.listings[p.ListingID.Bytes].ItemName,
		SupplierName: s.m.users[p.SupplierID.Bytes].Name,
	}, nil
}

func (s txStore) TransitionPendingPayment(_ context.Context, arg dbgen.TransitionPendingPaymentParams) (dbgen.Payment, error) {
	p, ok := s.m.payments[arg.TransactionReference]
	if !ok || p.Status != dbgen.PaymentStatusPending {
		return dbgen.Payment{}, pgx.ErrNoRows
	}
	p.Status = arg.Status
	p.UpdatedAt = db.Timestamptz(s.m.now())
	s.m.payments[arg.TransactionReference] = p
	return p, nil
}

func (s txStore) MarkListingUnavailable(_ context.Context, id pgtype.UUID) (int64, error) {
	l, ok := s.m.listings[id.Bytes]
	if !ok {
		return 0, nil
	}
	l.IsAvailable = false
	s.m.listings[id.Bytes] = l
	return 1, nil
}

func (s txStore) ListPaymentsByBuyer(_ context.Context, arg dbgen.ListPaymentsByBuyerParams) ([]dbgen.Payment, error) {
	out := []dbgen.Payment{}
	for _, p := range s.m.payments {
		if db.UUIDEqual(p.BuyerID, arg.BuyerID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Time.After(out[j].CreatedAt.Time) })
	if int(arg.Offset) >= len(out) {
		return []dbgen.Payment{}, nil
	}
	out = out[arg.Offset:]
	if int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (s txStore) ListStalePendingPayments(_ context.Context, arg dbgen.ListStalePendingPaymentsParams) ([]dbgen.Payment, error) {
	out := []dbgen.Payment{}
	for _, p := range s.m.payments {
		if p.Status == dbgen.PaymentStatusPending && p.CreatedAt.Time.Before(arg.CreatedBefore.Time) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Time.Before(out[j].CreatedAt.Time) })
	if int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (s txStore) InsertWebhookEvent(_ context.Context, arg dbgen.InsertWebhookEventParams) error {
	s.m.events = append(s.m.events, arg)
	return nil
}

// stubGateway records calls and returns canned answers.
type stubGateway struct {
	mu         sync.Mutex
	initErr    error
	verify     map[string]Verification
	verifyErr  error
	initCalls  []InitializeRequest
	verifyRefs []string
	// onInit runs before InitializeTransaction answers.
	onInit func(InitializeRequest)
}

func (g *stubGateway) InitializeTransaction(_ context.Context, req InitializeRequest) (Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls = append(g.initCalls, req)
	if g.onInit != nil {
		g.onInit(req)
	}
	if g.initErr != nil {
		return Authorization{}, g.initErr
	}
	return Authorization{AuthorizationURL: "https://checkout.paystack.com/" + req.Reference, Reference: req.Reference}, nil
}

func (g *stubGateway) VerifyTransaction(_ context.Context, ref string) (Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyRefs = append(g.verifyRefs, ref)
	if g.verifyErr != nil {
		return Verification{}, g.verifyErr
	}
	v, ok := g.verify[ref]
	if !ok {
		return Verification{}, &GatewayError{Kind: GatewayRejected, StatusCode: 400, Message: "Transaction reference not found"}
	}
	return v, nil
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	refs  []string
	delay time.Duration
	err   error
	errs  map[string]error
}

func (e *recordingEnqueuer) EnqueueReconcile(_ context.Context, ref string, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if err := e.errs[ref]; err != nil {
		return err
	}
	e.refs = append(e.refs, ref)
	e.delay = delay
	return nil
}

type fixture struct {
	repo     *memRepo
	gateway  *stubGateway
	enqueuer *recordingEnqueuer
	engine   *Engine
	svc      *Service
	farmer   dbgen.User
	buyer    dbgen.User
	listing  dbgen.Listing
}

func newFixture() *fixture {
	repo := newMemRepo()
	gw := &stubGateway{verify: map[string]Verification{}}
	enq := &recordingEnqueuer{}
	engine := NewEngine(repo)
	f := &fixture{
		repo:     repo,
		gateway:  gw,
		enqueuer: enq,
		engine:   engine,
		svc: &Service{
			Repo:           repo,
			Gateway:        gw,
			Engine:         engine,
			Enqueuer:       enq,
			CallbackURL:    "http://localhost:8080/payment/success",
			ReconcileDelay: 10 * time.Minute,
		},
	}
	f.farmer = repo.addUser("Ada Farms", "ada@farm.test", dbgen.UserRoleFarmer)
	f.buyer = repo.addUser("Bola", "bola@buyer.test", dbgen.UserRoleBuyer)
	f.listing = repo.addListing(f.farmer, "Maize", "150.00")
	return f
}
