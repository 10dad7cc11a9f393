package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/order"
)

// Stats serves GET /api/dashboard/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.orders.Stats(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("totalOrders")
		e.Int(s.Orders)
		e.FieldStart("totalRevenue")
		encodeMoney(e, s.Revenue)
		e.FieldStart("ordersByStatus")
		e.ObjStart()
		for _, status := range order.Statuses {
			e.FieldStart(string(status))
			e.Int(s.ByStatus[status])
		}
		e.ObjEnd()
		e.FieldStart("totalProducts")
		e.Int(s.Products)
		e.FieldStart("lowStockItems")
		e.Int(s.LowStockItems)
		e.ObjEnd()
	})
}
