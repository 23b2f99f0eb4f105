package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ridehub/ms-booking/internal/database"
	"github.com/ridehub/ms-booking/internal/events"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/pkg/seatlock"
	"github.com/ridehub/ms-booking/pkg/vnpay"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var errStorage = errors.New("storage unavailable")

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// movableClock is a clock tests can advance
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// fakeBookingStore mirrors the guarded updates of BookingRepository
type fakeBookingStore struct {
	mu       sync.Mutex
	bookings map[int64]*models.Booking

	listErr       error
	cancelErr     map[int64]error
	transitionErr error
	// staleExpired, when set, is returned by FindExpiredAwaitingPayment
	// instead of the live rows
	staleExpired []*models.Booking
}

func newFakeBookingStore(bookings ...*models.Booking) *fakeBookingStore {
	store := &fakeBookingStore{bookings: make(map[int64]*models.Booking), cancelErr: make(map[int64]error)}
	for _, b := range bookings {
		store.bookings[b.ID] = b
	}
	return store
}

func (s *fakeBookingStore) get(id int64) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		cp := *b
		return &cp
	}
	return nil
}

func (s *fakeBookingStore) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	return s.get(id), nil
}

func (s *fakeBookingStore) FindExpiredAwaitingPayment(_ context.Context, now time.Time) ([]*models.Booking, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.staleExpired != nil {
		return s.staleExpired, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Booking
	for _, b := range s.bookings {
		if b.IsExpiredAt(now) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeBookingStore) CountExpiredAwaitingPayment(ctx context.Context, now time.Time) (int, error) {
	if s.listErr != nil {
		return 0, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, b := range s.bookings {
		if b.IsExpiredAt(now) {
			count++
		}
	}
	return count, nil
}

func (s *fakeBookingStore) MarkCanceled(ctx context.Context, id int64, now time.Time) (bool, error) {
	if err := s.cancelErr[id]; err != nil {
		return false, err
	}
	return s.TransitionStatus(ctx, id, []models.BookingStatus{models.BookingStatusAwaitingPayment}, models.BookingStatusCanceled, now)
}

func (s *fakeBookingStore) TransitionStatus(_ context.Context, id int64, from []models.BookingStatus, to models.BookingStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.IsDeleted {
		return false, nil
	}
	for _, status := range from {
		if b.Status == status {
			b.Status = to
			b.UpdatedAt = &now
			return true, nil
		}
	}
	return false, nil
}

// fakeTransactionStore mirrors PaymentTransactionRepository
type fakeTransactionStore struct {
	mu        sync.Mutex
	txns      map[string]*models.PaymentTransaction
	updateErr error
}

func newFakeTransactionStore(txns ...*models.PaymentTransaction) *fakeTransactionStore {
	store := &fakeTransactionStore{txns: make(map[string]*models.PaymentTransaction)}
	for _, txn := range txns {
		store.txns[txn.TransactionID] = txn
	}
	return store
}

func (s *fakeTransactionStore) get(id string) *models.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn, ok := s.txns[id]; ok {
		cp := *txn
		return &cp
	}
	return nil
}

func (s *fakeTransactionStore) GetByTransactionID(_ context.Context, id string) (*models.PaymentTransaction, error) {
	return s.get(id), nil
}

func (s *fakeTransactionStore) FindPollable(_ context.Context, method models.PaymentMethod, createdAfter time.Time) ([]*models.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PaymentTransaction
	for _, txn := range s.txns {
		if txn.Method == method && !txn.Status.IsTerminal() && !txn.IsDeleted && txn.CreatedAt.After(createdAfter) {
			cp := *txn
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeTransactionStore) UpdateStatus(_ context.Context, id string, status models.PaymentStatus, note *string, now time.Time) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	if !ok || txn.IsDeleted || txn.Status.IsTerminal() {
		return false, nil
	}
	txn.Status = status
	txn.UpdatedAt = &now
	if note != nil {
		txn.AppendNote(*note)
	}
	return true, nil
}

// fakeWebhookLogStore keeps log rows by payload hash
type fakeWebhookLogStore struct {
	mu        sync.Mutex
	byHash    map[string]*models.PaymentWebhookLog
	createErr error
}

func newFakeWebhookLogStore() *fakeWebhookLogStore {
	return &fakeWebhookLogStore{byHash: make(map[string]*models.PaymentWebhookLog)}
}

func (s *fakeWebhookLogStore) ExistsByPayloadHash(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byHash[hash]
	return ok, nil
}

func (s *fakeWebhookLogStore) add(entry *models.PaymentWebhookLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[entry.PayloadHash] = entry
}

func (s *fakeWebhookLogStore) all() []*models.PaymentWebhookLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PaymentWebhookLog, 0, len(s.byHash))
	for _, entry := range s.byHash {
		out = append(out, entry)
	}
	return out
}

// fakeSettlementStore applies a settlement to the fake stores all or
// nothing: every injected error is checked before anything changes
type fakeSettlementStore struct {
	mu           sync.Mutex
	bookings     *fakeBookingStore
	transactions *fakeTransactionStore
	logs         *fakeWebhookLogStore
	calls        int
}

func (s *fakeSettlementStore) Settle(ctx context.Context, st *models.PaymentSettlement) (models.SettlementOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	var outcome models.SettlementOutcome
	if s.transactions.updateErr != nil {
		return outcome, s.transactions.updateErr
	}
	txn := s.transactions.get(st.TransactionID)
	if txn == nil || txn.IsDeleted || txn.Status.IsTerminal() {
		return outcome, nil
	}
	touchBooking := st.BookingID != nil && st.BookingTo != ""
	if touchBooking && s.bookings.transitionErr != nil {
		return outcome, s.bookings.transitionErr
	}
	if s.logs.createErr != nil {
		return outcome, s.logs.createErr
	}
	if seen, _ := s.logs.ExistsByPayloadHash(ctx, st.Log.PayloadHash); seen {
		return outcome, database.ErrDuplicateWebhook
	}

	outcome.TransactionUpdated, _ = s.transactions.UpdateStatus(ctx, st.TransactionID, st.Status, nil, st.At)
	if touchBooking {
		outcome.BookingTransitioned, _ = s.bookings.TransitionStatus(ctx, *st.BookingID, st.BookingFrom, st.BookingTo, st.At)
	}
	s.logs.add(st.Log)
	return outcome, nil
}

type fakeSessionStore struct {
	mu      sync.Mutex
	seats   map[int64][]string
	readErr error
	deleted []int64
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{seats: make(map[int64][]string)}
}

func (s *fakeSessionStore) SeatNumbers(_ context.Context, bookingID int64) ([]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seats[bookingID], nil
}

func (s *fakeSessionStore) DeleteSession(_ context.Context, bookingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, bookingID)
	delete(s.seats, bookingID)
	return nil
}

type fakeSeatLocks struct {
	mu        sync.Mutex
	canceled  []seatlock.LockRequest
	confirmed []seatlock.LockRequest
	cancelErr error
}

func (f *fakeSeatLocks) CancelSeatLocks(_ context.Context, req seatlock.LockRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, req)
	return f.cancelErr
}

func (f *fakeSeatLocks) ConfirmSeatLocks(_ context.Context, req seatlock.LockRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, req)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	canceled  []events.BookingEvent
	confirmed []events.BookingEvent
}

func (p *fakePublisher) PublishBookingCanceled(_ context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, event)
	return nil
}

func (p *fakePublisher) PublishBookingConfirmed(_ context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, event)
	return nil
}

// fakeQuerier answers every query with the same result or error
type fakeQuerier struct {
	mu       sync.Mutex
	result   *vnpay.QueryResult
	err      error
	requests []vnpay.QueryRequest
}

func (q *fakeQuerier) QueryTransaction(_ context.Context, req vnpay.QueryRequest) (*vnpay.QueryResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	if q.err != nil {
		return nil, q.err
	}
	cp := *q.result
	return &cp, nil
}

func (q *fakeQuerier) calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

type fakeVerifier struct {
	valid bool
}

func (v fakeVerifier) VerifyIPN(string) bool { return v.valid }
