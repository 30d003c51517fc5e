package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/orders"
)

// Idempotency is satisfied by *redisx.Idempotency. Claim must be atomic:
// exactly one caller wins a given key.
type Idempotency interface {
	Claim(ctx context.Context, key string) (bool, error)
	Lookup(ctx context.Context, key string) (orderID int64, found bool, err error)
	Remember(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

// KindConflict is reported only by this layer, for a create request whose
// Idempotency-Key is held by another request still in flight.
const KindConflict domain.Kind = "Conflict"

type OrdersHandler struct {
	Service *orders.Service
	Idem    Idempotency
	Logger  *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}/status", h.advanceStatus)
		r.Post("/{id}/items", h.addItem)
		r.Patch("/{id}/items/{itemId}", h.updateItem)
		r.Delete("/{id}/items/{itemId}", h.removeItem)
	})
}

type errorBody struct {
	Kind      domain.Kind `json:"kind"`
	Message   string      `json:"message"`
	ProductID int64       `json:"productId,omitempty"`
	Available *int        `json:"available,omitempty"`
	Requested *int        `json:"requested,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusCode maps an error kind to its HTTP status.
func StatusCode(k domain.Kind) int {
	switch {
	case k.IsNotFound():
		return http.StatusNotFound
	case k == domain.KindInvalidInput, k == domain.KindInvalidState,
		k == domain.KindInsufficientStock, k == domain.KindLastItem:
		return http.StatusBadRequest
	case k == KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	derr, ok := domain.AsError(err)
	if !ok {
		derr = domain.Internal()
	}
	body := errorBody{Kind: derr.Kind, Message: derr.Message}
	if derr.Kind == domain.KindInsufficientStock {
		body.ProductID = derr.ProductID
		body.Available = &derr.Available
		body.Requested = &derr.Requested
	}
	writeJSON(w, StatusCode(derr.Kind), map[string]errorBody{"error": body})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.InvalidInput("invalid json: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.InvalidInput("%s must be a positive integer", name)
	}
	return id, nil
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderInput
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, domain.InvalidInput("customerId is required"))
		return
	}

	ctx := r.Context()
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.Idem == nil {
		o, err := h.Service.CreateOrder(ctx, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)
		return
	}

	won, err := h.Idem.Claim(ctx, key)
	if err != nil {
		h.Logger.Error("idempotency claim", zap.String("key", key), zap.Error(err))
		writeError(w, domain.Internal())
		return
	}
	if !won {
		h.replay(w, r, key)
		return
	}

	o, err := h.Service.CreateOrder(ctx, req)
	if err != nil {
		if rerr := h.Idem.Release(context.WithoutCancel(ctx), key); rerr != nil {
			h.Logger.Warn("idempotency release", zap.String("key", key), zap.Error(rerr))
		}
		writeError(w, err)
		return
	}
	if err := h.Idem.Remember(context.WithoutCancel(ctx), key, o.ID); err != nil {
		h.Logger.Error("idempotency remember", zap.String("key", key), zap.Int64("order_id", o.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, o)
}

// replay answers a request whose key was claimed earlier: with the order it
// created, or 409 while the first request is still running.
func (h *OrdersHandler) replay(w http.ResponseWriter, r *http.Request, key string) {
	ctx := r.Context()
	id, found, err := h.Idem.Lookup(ctx, key)
	if err != nil {
		h.Logger.Error("idempotency lookup", zap.String("key", key), zap.Error(err))
		writeError(w, domain.Internal())
		return
	}
	if !found {
		writeJSON(w, StatusCode(KindConflict), map[string]errorBody{"error": {
			Kind:    KindConflict,
			Message: "a request with this Idempotency-Key is still in progress",
		}})
		return
	}
	o, err := h.Service.GetOrder(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.OrderFilter{Status: domain.Status(q.Get("status"))}
	if v := q.Get("customerId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, domain.InvalidInput("customerId must be an integer"))
			return
		}
		f.CustomerID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, domain.InvalidInput("limit must be an integer"))
			return
		}
		f.Limit = n
	}

	list, err := h.Service.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Service.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type advanceStatusReq struct {
	Status   domain.Status `json:"status"`
	WorkerID *int64        `json:"workerId"`
}

func (h *OrdersHandler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req advanceStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Service.AdvanceStatus(r.Context(), id, req.Status, req.WorkerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req domain.ItemInput
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	it, err := h.Service.AddItem(r.Context(), id, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (h *OrdersHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	itemID, err := pathID(r, "itemId")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	it, err := h.Service.UpdateItemQuantity(r.Context(), id, itemID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *OrdersHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	itemID, err := pathID(r, "itemId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Service.RemoveItem(r.Context(), id, itemID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
