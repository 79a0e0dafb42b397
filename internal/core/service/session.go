package service

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/storefront-cart/internal/core/domain"
	"github.com/rl1809/storefront-cart/internal/port"
)

const (
	defaultSaveTimeout    = 3 * time.Second
	DefaultSessionIdleTTL = 30 * time.Minute
)

// Session is the cart and checkout progress of one shopper.
type Session struct {
	ID   string
	Cart *CartStore
	Flow *CheckoutFlow

	mu     sync.Mutex
	detach func()
}

func NewSession(id string, opts ...FlowOption) *Session {
	cart := NewCartStore()
	return &Session{
		ID:   id,
		Cart: cart,
		Flow: NewCheckoutFlow(cart, opts...),
	}
}

// Do runs fn with exclusive access to the session.
func (s *Session) Do(fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// AddProduct resolves the variant through the catalog and adds it to the
// cart. The cart is left untouched if the lookup fails.
func (s *Session) AddProduct(ctx context.Context, catalog port.CatalogLookup, productID, size string, quantity int) error {
	v, err := catalog.LookupVariant(ctx, productID, size)
	if err != nil {
		return errors.Wrapf(err, "lookup %s/%s", productID, size)
	}
	if v == nil {
		return errors.Wrapf(port.ErrVariantNotFound, "lookup %s/%s", productID, size)
	}

	s.Cart.AddItem(v.ProductID, v.Size, v.Name, v.Image, v.Price, quantity)
	return nil
}

// SessionManager hands out sessions by ID, creating them on first use.
// With a persistence backend, a new session starts from the stored cart and
// every later mutation is written back. Sessions not used for idleTTL are
// evicted from memory; the next Get reloads them from persistence.
type SessionManager struct {
	store       port.CartPersistence
	log         logrus.FieldLogger
	flowOpts    []FlowOption
	saveTimeout time.Duration

	sessions *ttlcache.Cache[string, *Session]
	loading  singleflight.Group
}

func NewSessionManager(store port.CartPersistence, log logrus.FieldLogger, idleTTL time.Duration, opts ...FlowOption) *SessionManager {
	if idleTTL <= 0 {
		idleTTL = DefaultSessionIdleTTL
	}
	return &SessionManager{
		store:       store,
		log:         log,
		flowOpts:    opts,
		saveTimeout: defaultSaveTimeout,
		sessions: ttlcache.New[string, *Session](
			ttlcache.WithTTL[string, *Session](idleTTL),
		),
	}
}

func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	if s, ok := m.lookup(id); ok {
		return s, nil
	}

	v, err, _ := m.loading.Do(id, func() (interface{}, error) {
		if s, ok := m.lookup(id); ok {
			return s, nil
		}

		s := NewSession(id, m.flowOpts...)
		if m.store != nil {
			items, err := m.store.LoadCart(ctx, id)
			if err != nil {
				return nil, errors.Wrapf(err, "load cart for session %s", id)
			}
			if len(items) > 0 {
				s.Cart.Replace(items)
			}
			s.detach = s.Cart.Subscribe(m.persist(id))
		}

		m.sessions.Set(id, s, ttlcache.DefaultTTL)

		m.log.WithFields(logrus.Fields{
			"session": id,
			"items":   s.Cart.Count(),
		}).Debug("session started")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Drop forgets the session and deletes its stored cart. A caller still
// holding the session can keep using it, but its changes are no longer saved.
func (m *SessionManager) Drop(ctx context.Context, id string) error {
	if item := m.sessions.Get(id, ttlcache.WithDisableTouchOnHit[string, *Session]()); item != nil {
		item.Value().Do(func(s *Session) error {
			if s.detach != nil {
				s.detach()
				s.detach = nil
			}
			return nil
		})
	}
	m.sessions.Delete(id)

	if m.store == nil {
		return nil
	}
	return errors.Wrapf(m.store.DeleteCart(ctx, id), "delete cart for session %s", id)
}

// Len counts the sessions that have not gone idle.
func (m *SessionManager) Len() int {
	return m.sessions.Len()
}

// Start runs idle-session cleanup until Stop is called.
func (m *SessionManager) Start() {
	m.sessions.Start()
}

func (m *SessionManager) Stop() {
	m.sessions.Stop()
}

func (m *SessionManager) lookup(id string) (*Session, bool) {
	item := m.sessions.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (m *SessionManager) persist(id string) Observer {
	return func(snapshot domain.CartSnapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), m.saveTimeout)
		defer cancel()

		if err := m.store.SaveCart(ctx, id, snapshot.Items); err != nil {
			m.log.WithError(err).WithField("session", id).Error("failed to save cart")
		}
	}
}
