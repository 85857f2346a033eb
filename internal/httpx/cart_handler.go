package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*orders.CartView, error)
	AddItem(ctx context.Context, userID, productID string, qty int) (*orders.CartView, error)
	UpdateItem(ctx context.Context, userID, productID string, qty int) (*orders.CartView, error)
	RemoveItem(ctx context.Context, userID, productID string) (*orders.CartView, error)
	ClearCart(ctx context.Context, userID string) error
}

type CartHandler struct {
	Service CartService
}

type addItemReq struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type updateItemReq struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/", h.get)
		r.Delete("/", h.clear)
		r.Post("/items", h.add)
		r.Put("/items/{productId}", h.update)
		r.Delete("/items/{productId}", h.remove)
	})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.GetCart(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decode(w, r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		invalid(w, err)
		return
	}
	v, err := h.Service.AddItem(r.Context(), UserID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *CartHandler) productID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "productId")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, r, orders.ErrCartItemMissing)
		return "", false
	}
	return id, true
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req updateItemReq
	if err := decode(w, r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		invalid(w, err)
		return
	}
	v, err := h.Service.UpdateItem(r.Context(), UserID(r.Context()), id, *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	v, err := h.Service.RemoveItem(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ClearCart(r.Context(), UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
