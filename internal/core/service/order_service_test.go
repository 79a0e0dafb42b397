package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront-cart/internal/core/domain"
)

// Mock CacheRepository
type mockCacheRepo struct {
	idempotencySet map[string]bool
	err            error
	releaseErr     error
	mu             sync.Mutex
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.releaseErr != nil {
		return m.releaseErr
	}
	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) holds(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idempotencySet[key]
}

// Mock DatabaseRepository
type mockOrderDB struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	err    error
}

func (m *mockOrderDB) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderDB) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

var testContact = domain.Contact{Name: "Ada", Email: "ada@example.com", Address: "1 Main St"}

func confirmedSession(t *testing.T) *Session {
	t.Helper()
	sess := NewSession("sess-1")
	sess.Cart.AddItem("P1", "M", "Jean", "", jeanPrice, 2)
	sess.Cart.AddItem("P2", "S", "Shirt", "", shirtPrice, 1)
	ok, err := sess.Flow.GoToStep(domain.StepConfirm)
	require.NoError(t, err)
	require.True(t, ok)
	return sess
}

func TestPlaceOrder_Success(t *testing.T) {
	svc := NewOrderService(newMockCacheRepo(), 10)
	sess := confirmedSession(t)

	order, err := svc.PlaceOrder(context.Background(), sess, "req-1", testContact)
	require.NoError(t, err)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "sess-1", order.SessionID)
	assert.Equal(t, testContact, order.Contact)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, 3, order.ItemCount)
	assert.Equal(t, "75.48", order.Subtotal.StringFixed(2))
	require.Len(t, order.Items, 2)

	// Read from queue
	queued := <-svc.GetOrderQueue()
	assert.Equal(t, order.ID, queued.ID)

	assert.Equal(t, 0, sess.Cart.Count())
	assert.Equal(t, domain.StepCart, sess.Flow.Current())
}

func TestPlaceOrder_NotAtConfirm(t *testing.T) {
	svc := NewOrderService(newMockCacheRepo(), 10)
	sess := NewSession("sess-1")
	sess.Cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)
	_, _ = sess.Flow.GoToStep(domain.StepPayment)

	_, err := svc.PlaceOrder(context.Background(), sess, "req-1", testContact)
	assert.ErrorIs(t, err, ErrNotAtConfirm)
	assert.Equal(t, 1, sess.Cart.Count())
	assert.Len(t, svc.GetOrderQueue(), 0)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	svc := NewOrderService(newMockCacheRepo(), 10)
	sess := confirmedSession(t)
	sess.Cart.Clear()

	_, err := svc.PlaceOrder(context.Background(), sess, "req-1", testContact)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, domain.StepConfirm, sess.Flow.Current())
}

func TestPlaceOrder_DuplicateRequest(t *testing.T) {
	cache := newMockCacheRepo()
	svc := NewOrderService(cache, 10)

	_, err := svc.PlaceOrder(context.Background(), confirmedSession(t), "req-1", testContact)
	require.NoError(t, err)

	// Same session, same request ID
	sess := confirmedSession(t)
	_, err = svc.PlaceOrder(context.Background(), sess, "req-1", testContact)
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	// Cart untouched by the rejected attempt
	assert.Equal(t, 3, sess.Cart.Count())
	assert.Len(t, svc.GetOrderQueue(), 1)
}

func TestPlaceOrder_CacheError(t *testing.T) {
	cache := newMockCacheRepo()
	cache.err = errors.New("redis down")
	svc := NewOrderService(cache, 10)
	sess := confirmedSession(t)

	_, err := svc.PlaceOrder(context.Background(), sess, "req-1", testContact)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateRequest)
	assert.Equal(t, 3, sess.Cart.Count())
}

func TestPlaceOrder_QueueFullHonoursContext(t *testing.T) {
	svc := NewOrderService(newMockCacheRepo(), 0)
	sess := confirmedSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.PlaceOrder(ctx, sess, "req-1", testContact)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, sess.Cart.Count())
}

func TestPlaceOrder_RetryAfterFailedEnqueue(t *testing.T) {
	cache := newMockCacheRepo()
	svc := NewOrderService(cache, 0)
	sess := confirmedSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.PlaceOrder(ctx, sess, "req-1", testContact)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, cache.holds("order:sess-1:req-1"), "key freed for a retry")

	received := make(chan domain.Order, 1)
	go func() { received <- <-svc.GetOrderQueue() }()

	order, err := svc.PlaceOrder(context.Background(), sess, "req-1", testContact)
	require.NoError(t, err)
	assert.Equal(t, order.ID, (<-received).ID)
	assert.Equal(t, 0, sess.Cart.Count())
}

func TestPlaceOrder_ReleaseFailureReported(t *testing.T) {
	cache := newMockCacheRepo()
	cache.releaseErr = errors.New("redis down")
	svc := NewOrderService(cache, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := svc.PlaceOrder(ctx, confirmedSession(t), "req-1", testContact)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "redis down")
}

func TestPlaceOrder_CloseUnblocksPendingEnqueue(t *testing.T) {
	cache := newMockCacheRepo()
	svc := NewOrderService(cache, 0)
	sess := confirmedSession(t)

	errc := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), sess, "req-1", testContact)
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	svc.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrServiceClosed)
	case <-time.After(time.Second):
		t.Fatal("PlaceOrder still blocked after Close")
	}
	assert.Equal(t, 3, sess.Cart.Count())
	assert.False(t, cache.holds("order:sess-1:req-1"))

	_, ok := <-svc.GetOrderQueue()
	assert.False(t, ok, "queue closed")
}

func TestPlaceOrder_AfterClose(t *testing.T) {
	svc := NewOrderService(newMockCacheRepo(), 10)
	svc.Close()
	svc.Close()

	_, err := svc.PlaceOrder(context.Background(), confirmedSession(t), "req-1", testContact)
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestRunWorker_SavesOrders(t *testing.T) {
	db := &mockOrderDB{orders: make(map[string]domain.Order)}
	svc := NewOrderService(newMockCacheRepo(), 10)
	log, hook := test.NewNullLogger()

	done := make(chan struct{})
	go func() {
		RunWorker(1, svc.GetOrderQueue(), db, log)
		close(done)
	}()

	var ids []string
	for i, req := range []string{"req-1", "req-2"} {
		sess := confirmedSession(t)
		sess.ID = []string{"a", "b"}[i]
		order, err := svc.PlaceOrder(context.Background(), sess, req, testContact)
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	svc.Close()
	<-done

	for _, id := range ids {
		saved, err := db.GetOrder(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, domain.OrderStatusConfirmed, saved.Status)
	}
	assert.Len(t, hook.AllEntries(), 2)
}

func TestRunWorker_LogsFailure(t *testing.T) {
	db := &mockOrderDB{orders: make(map[string]domain.Order), err: errors.New("mysql down")}
	queue := make(chan domain.Order, 1)
	queue <- domain.Order{ID: "o-1"}
	close(queue)
	log, hook := test.NewNullLogger()

	RunWorker(1, queue, db, log)

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "o-1", hook.LastEntry().Data["order"])
}
