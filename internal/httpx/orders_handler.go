package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService interface {
	BuildDraft(ctx context.Context, userID string) (orders.Draft, error)
	Checkout(ctx context.Context, userID string, opts orders.CheckoutOptions) (*orders.CheckoutResult, error)
	Confirm(ctx context.Context, userID, orderID, ref string) (*orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*orders.Order, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
	Set(ctx context.Context, orderID string, cs redisx.CachedStatus) error
}

type OrdersHandler struct {
	Service OrderService
	Cache   StatusCache
}

type checkoutReq struct {
	PaymentMethodID   string `json:"paymentMethodId" validate:"omitempty,payment_method"`
	SavePaymentMethod bool   `json:"savePaymentMethod"`
	Force3DS          bool   `json:"force3ds"`
	// Currency is decoded only to be refused.
	Currency *string `json:"currency"`
}

type checkoutResp struct {
	Order        *orders.Order `json:"order"`
	ClientSecret string        `json:"clientSecret"`
}

type confirmReq struct {
	OrderID         string `json:"orderId" validate:"required,uuid"`
	PaymentIntentID string `json:"paymentIntentId" validate:"required,payment_intent"`
}

type statusResp struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	Cached    bool      `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/", h.listOrders)
		r.Get("/draft", h.draft)
		r.Post("/checkout", h.checkout)
		r.Post("/confirm", h.confirm)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getStatus)
	})
}

func (h *OrdersHandler) draft(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.BuildDraft(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decode(w, r, &req, true); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Currency != nil {
		badRequest(w, "currency is not accepted; orders are charged in the store currency")
		return
	}
	if err := validate.Struct(req); err != nil {
		invalid(w, err)
		return
	}
	res, err := h.Service.Checkout(r.Context(), UserID(r.Context()), orders.CheckoutOptions{
		PaymentMethodID:   req.PaymentMethodID,
		SavePaymentMethod: req.SavePaymentMethod,
		Force3DS:          req.Force3DS,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, checkoutResp{Order: res.Order, ClientSecret: res.ClientSecret})
}

func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmReq
	if err := decode(w, r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		invalid(w, err)
		return
	}
	o, err := h.Service.Confirm(r.Context(), UserID(r.Context()), req.OrderID, req.PaymentIntentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListOrders(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeData(w, http.StatusOK, list)
}

func (h *OrdersHandler) orderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, r, orders.ErrOrderNotFound)
		return "", false
	}
	return id, true
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	o, err := h.Service.GetOrder(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

// getStatus serves from the status cache when it can. A cached entry owned
// by another user is treated as not found.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	user := UserID(ctx)
	log := logging.FromContext(ctx, zap.NewNop())

	if h.Cache != nil {
		cs, hit, err := h.Cache.Get(ctx, id)
		if err != nil {
			log.Warn("status_cache_read_failed", zap.String("order_id", id), zap.Error(err))
		} else if hit {
			if cs.UserID != user {
				writeError(w, r, orders.ErrOrderNotFound)
				return
			}
			writeData(w, http.StatusOK, statusResp{OrderID: id, Status: cs.Status, UpdatedAt: cs.UpdatedAt, Cached: true})
			return
		}
	}

	o, err := h.Service.GetOrder(ctx, user, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		cs := redisx.CachedStatus{UserID: o.UserID, Status: string(o.Status), UpdatedAt: o.UpdatedAt}
		if err := h.Cache.Set(ctx, id, cs); err != nil {
			log.Warn("status_cache_write_failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	writeData(w, http.StatusOK, statusResp{OrderID: id, Status: string(o.Status), UpdatedAt: o.UpdatedAt})
}
