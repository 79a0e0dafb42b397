package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront-cart/internal/core/domain"
	"github.com/rl1809/storefront-cart/internal/core/service"
	"github.com/rl1809/storefront-cart/internal/port"
)

type HTTPHandler struct {
	sessions     *service.SessionManager
	catalog      port.CatalogLookup
	orderService *service.OrderService
	orders       port.DatabaseRepository
}

type ItemHTTPRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  *int   `json:"quantity"`
}

type StepHTTPRequest struct {
	Step domain.Step `json:"step"`
}

type PlaceOrderHTTPRequest struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}

type MessageHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CartHTTPResponse struct {
	Items     []domain.LineItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
}

type CheckoutHTTPResponse struct {
	Step       domain.Step       `json:"step"`
	Name       string            `json:"name"`
	CanProceed bool              `json:"can_proceed"`
	Steps      []domain.StepView `json:"steps"`
}

type StepRejectedHTTPResponse struct {
	MessageHTTPResponse
	BlockedAt string `json:"blocked_at"`
}

type OrderHTTPResponse struct {
	Success  bool            `json:"success"`
	OrderID  string          `json:"order_id"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type OrderDetailHTTPResponse struct {
	OrderID   string             `json:"order_id"`
	Status    domain.OrderStatus `json:"status"`
	Contact   domain.Contact     `json:"contact"`
	Items     []domain.LineItem  `json:"items"`
	ItemCount int                `json:"item_count"`
	Subtotal  decimal.Decimal    `json:"subtotal"`
	CreatedAt time.Time          `json:"created_at"`
}

func NewHTTPHandler(sessions *service.SessionManager, catalog port.CatalogLookup, orderService *service.OrderService, orders port.DatabaseRepository) *HTTPHandler {
	return &HTTPHandler{
		sessions:     sessions,
		catalog:      catalog,
		orderService: orderService,
		orders:       orders,
	}
}

// Router registers the storefront API routes.
func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/cart/items", h.AddItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items", h.UpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{product_id}/{size}", h.RemoveItem).Methods(http.MethodDelete)
	api.HandleFunc("/cart/empty", h.EmptyCart).Methods(http.MethodPost)
	api.HandleFunc("/checkout", h.GetCheckout).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/checkout/step", h.GoToStep).Methods(http.MethodPost)
	api.HandleFunc("/checkout/place", h.PlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet, http.MethodHead)
	return r
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess *service.Session) {
		writeJSON(w, http.StatusOK, cartResponse(sess.Cart.Snapshot()))
	})
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req ItemHTTPRequest
	if !decodeItemRequest(w, r, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	h.withSession(w, r, func(sess *service.Session) {
		err := sess.AddProduct(r.Context(), h.catalog, req.ProductID, req.Size, quantity)
		if errors.Is(err, port.ErrVariantNotFound) {
			writeJSON(w, http.StatusNotFound, MessageHTTPResponse{Message: "product not found"})
			return
		}
		if err != nil {
			requestLog(r).WithError(err).Error("add to cart failed")
			writeJSON(w, http.StatusInternalServerError, MessageHTTPResponse{Message: "internal error"})
			return
		}

		requestLog(r).WithFields(logrus.Fields{
			"product":  req.ProductID,
			"size":     req.Size,
			"quantity": quantity,
		}).Debug("added to cart")
		writeJSON(w, http.StatusOK, cartResponse(sess.Cart.Snapshot()))
	})
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemHTTPRequest
	if !decodeItemRequest(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "missing required fields"})
		return
	}

	h.withSession(w, r, func(sess *service.Session) {
		sess.Cart.UpdateQuantity(req.ProductID, req.Size, *req.Quantity)
		writeJSON(w, http.StatusOK, cartResponse(sess.Cart.Snapshot()))
	})
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	h.withSession(w, r, func(sess *service.Session) {
		sess.Cart.RemoveItem(vars["product_id"], vars["size"])
		writeJSON(w, http.StatusOK, cartResponse(sess.Cart.Snapshot()))
	})
}

func (h *HTTPHandler) EmptyCart(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess *service.Session) {
		sess.Cart.Clear()
		writeJSON(w, http.StatusOK, cartResponse(sess.Cart.Snapshot()))
	})
}

func (h *HTTPHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess *service.Session) {
		writeJSON(w, http.StatusOK, checkoutResponse(sess.Flow))
	})
}

func (h *HTTPHandler) GoToStep(w http.ResponseWriter, r *http.Request) {
	var req StepHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "invalid request body"})
		return
	}

	h.withSession(w, r, func(sess *service.Session) {
		ok, err := sess.Flow.GoToStep(req.Step)
		if errors.Is(err, service.ErrUnknownStep) {
			writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "unknown step"})
			return
		}
		if !ok {
			blocker, _ := sess.Flow.BlockingStep(req.Step)
			writeJSON(w, http.StatusConflict, StepRejectedHTTPResponse{
				MessageHTTPResponse: MessageHTTPResponse{
					Message: fmt.Sprintf("%s: %s", service.ErrStepGateRejected, blocker),
				},
				BlockedAt: blocker.String(),
			})
			return
		}
		writeJSON(w, http.StatusOK, checkoutResponse(sess.Flow))
	})
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "missing required fields"})
		return
	}
	contact := domain.Contact{Name: req.Name, Email: req.Email, Address: req.Address}

	h.withSession(w, r, func(sess *service.Session) {
		order, err := h.orderService.PlaceOrder(r.Context(), sess, req.RequestID, contact)
		if err != nil {
			status := http.StatusInternalServerError
			message := "internal error"

			switch {
			case errors.Is(err, service.ErrDuplicateRequest):
				status = http.StatusConflict
				message = "duplicate request"
			case errors.Is(err, service.ErrNotAtConfirm):
				status = http.StatusConflict
				message = err.Error()
			case errors.Is(err, service.ErrEmptyCart):
				status = http.StatusBadRequest
				message = err.Error()
			case errors.Is(err, service.ErrServiceClosed):
				status = http.StatusServiceUnavailable
				message = err.Error()
			default:
				requestLog(r).WithError(err).Error("place order failed")
			}

			writeJSON(w, status, MessageHTTPResponse{Message: message})
			return
		}

		requestLog(r).WithField("order", order.ID).Info("order placed")
		writeJSON(w, http.StatusOK, OrderHTTPResponse{
			Success:  true,
			OrderID:  order.ID,
			Subtotal: order.Subtotal,
		})
	})
}

// GetOrder returns a stored order placed from the caller's session. Orders
// still waiting in the queue are not found yet.
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "missing session"})
		return
	}

	order, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		requestLog(r).WithError(err).Error("get order failed")
		writeJSON(w, http.StatusInternalServerError, MessageHTTPResponse{Message: "internal error"})
		return
	}
	if order == nil || order.SessionID != id {
		writeJSON(w, http.StatusNotFound, MessageHTTPResponse{Message: "order not found"})
		return
	}

	writeJSON(w, http.StatusOK, OrderDetailHTTPResponse{
		OrderID:   order.ID,
		Status:    order.Status,
		Contact:   order.Contact,
		Items:     order.Items,
		ItemCount: order.ItemCount,
		Subtotal:  order.Subtotal,
		CreatedAt: order.CreatedAt,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withSession runs fn while holding the caller's session.
func (h *HTTPHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(*service.Session)) {
	id := sessionID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "missing session"})
		return
	}

	sess, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		requestLog(r).WithError(err).Error("could not load session")
		writeJSON(w, http.StatusInternalServerError, MessageHTTPResponse{Message: "internal error"})
		return
	}

	_ = sess.Do(func(s *service.Session) error {
		fn(s)
		return nil
	})
}

func decodeItemRequest(w http.ResponseWriter, r *http.Request, req *ItemHTTPRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "invalid request body"})
		return false
	}
	if req.ProductID == "" || req.Size == "" {
		writeJSON(w, http.StatusBadRequest, MessageHTTPResponse{Message: "missing required fields"})
		return false
	}
	return true
}

func cartResponse(s domain.CartSnapshot) CartHTTPResponse {
	return CartHTTPResponse{
		Items:     s.Items,
		ItemCount: s.ItemCount,
		Subtotal:  s.Subtotal,
	}
}

func checkoutResponse(flow *service.CheckoutFlow) CheckoutHTTPResponse {
	return CheckoutHTTPResponse{
		Step:       flow.Current(),
		Name:       flow.Current().String(),
		CanProceed: flow.CanProceed(),
		Steps:      flow.Steps(),
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
