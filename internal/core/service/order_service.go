package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront-cart/internal/core/domain"
	"github.com/rl1809/storefront-cart/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrNotAtConfirm     = errors.New("checkout is not at the confirm step")
	ErrServiceClosed    = errors.New("order service is shutting down")
)

const (
	orderSaveTimeout      = 5 * time.Second
	idempotencyReleaseTTL = 2 * time.Second
)

type OrderService struct {
	cache      port.CacheRepository
	orderQueue chan domain.Order

	// sending is held for reading by every enqueue so Close can wait for
	// them before closing orderQueue.
	sending   sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewOrderService(cache port.CacheRepository, queueSize int) *OrderService {
	return &OrderService{
		cache:      cache,
		orderQueue: make(chan domain.Order, queueSize),
		done:       make(chan struct{}),
	}
}

// PlaceOrder turns the session's cart into a pending order and queues it for
// persistence. On success the cart is emptied and checkout starts over.
// The caller must hold the session (see Session.Do).
func (s *OrderService) PlaceOrder(ctx context.Context, sess *Session, requestID string, contact domain.Contact) (domain.Order, error) {
	if sess.Flow.Current() != domain.StepConfirm {
		return domain.Order{}, ErrNotAtConfirm
	}
	snapshot := sess.Cart.Snapshot()
	if snapshot.Empty() {
		return domain.Order{}, ErrEmptyCart
	}

	idempotencyKey := fmt.Sprintf("order:%s:%s", sess.ID, requestID)

	ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "idempotency check failed")
	}
	if !ok {
		return domain.Order{}, ErrDuplicateRequest
	}

	now := time.Now()
	order := domain.Order{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Contact:   contact,
		Items:     snapshot.Items,
		ItemCount: snapshot.ItemCount,
		Subtotal:  snapshot.Subtotal,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.enqueue(ctx, order); err != nil {
		if relErr := s.release(ctx, idempotencyKey); relErr != nil {
			return domain.Order{}, errors.Wrapf(err, "%s still held: %v", idempotencyKey, relErr)
		}
		return domain.Order{}, err
	}

	sess.Cart.Clear()
	sess.Flow.Reset()

	return order, nil
}

func (s *OrderService) GetOrderQueue() <-chan domain.Order {
	return s.orderQueue
}

func (s *OrderService) enqueue(ctx context.Context, order domain.Order) error {
	s.sending.RLock()
	defer s.sending.RUnlock()

	select {
	case <-s.done:
		return ErrServiceClosed
	default:
	}

	select {
	case s.orderQueue <- order:
		return nil
	case <-s.done:
		return ErrServiceClosed
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "enqueue order")
	}
}

// release frees the idempotency key of an order that was never queued, so the
// same request can be retried.
func (s *OrderService) release(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyReleaseTTL)
	defer cancel()

	return s.cache.ReleaseIdempotency(ctx, key)
}

// Close stops accepting orders and closes the queue once no enqueue is in
// flight. Workers drain what is already queued. Safe to call more than once.
func (s *OrderService) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.sending.Lock()
		close(s.orderQueue)
		s.sending.Unlock()
	})
}

// RunWorker saves queued orders until the queue is closed.
func RunWorker(id int, queue <-chan domain.Order, db port.DatabaseRepository, log logrus.FieldLogger) {
	log = log.WithField("worker", id)

	for order := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), orderSaveTimeout)

		order.Status = domain.OrderStatusConfirmed
		order.UpdatedAt = time.Now()

		entry := log.WithFields(logrus.Fields{
			"order":   order.ID,
			"session": order.SessionID,
		})
		if err := db.CreateOrder(ctx, order); err != nil {
			entry.WithError(err).Error("failed to save order")
		} else {
			entry.WithField("subtotal", order.Subtotal.String()).Info("saved order")
		}

		cancel()
	}
}
