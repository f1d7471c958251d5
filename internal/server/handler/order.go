package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/esportsarb/internal/domain"
)

// OrderHandler serves read-only order endpoints. Orders are placed and
// cancelled exclusively by the engine; the API exposes them for inspection.
type OrderHandler struct {
	orders domain.OrderStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler over the given store.
func NewOrderHandler(orders domain.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns orders for a specific link, or all non-terminal orders
// when no link is given.
// GET /api/orders?link=...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	linkKey := r.URL.Query().Get("link")

	var orders []domain.Order
	var err error

	if linkKey != "" {
		orders, err = h.orders.ListByLink(r.Context(), linkKey, parseListOpts(r))
	} else {
		orders, err = h.orders.ListNonTerminal(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}
