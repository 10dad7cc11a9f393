package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/order"
	"github.com/shoaibmehmood243/lensciaga/internal/idempotency"
)

// IdempotencyHeader lets clients retry checkout without placing a second
// order.
const IdempotencyHeader = "Idempotency-Key"

// PlaceOrder serves POST /api/order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodePlaceOrder(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" || h.idem == nil {
		o, err := h.orders.PlaceOrder(ctx, req)
		if err != nil {
			fail(w, r, err)
			return
		}
		writePlaced(w, http.StatusCreated, o)
		return
	}

	state, orderID, err := h.idem.Reserve(ctx, key)
	if err != nil {
		fail(w, r, err)
		return
	}
	switch state {
	case idempotency.StatePending:
		writeError(w, http.StatusConflict, "in_progress", "an order with this idempotency key is being placed")
		return
	case idempotency.StateDone:
		d, err := h.orders.Get(ctx, orderID)
		if err != nil {
			fail(w, r, err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writePlaced(w, http.StatusOK, d.Order)
		return
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		// The request may be retried with the same key, also after a panic.
		if rerr := h.idem.Release(context.WithoutCancel(ctx), key); rerr != nil {
			zctx.From(ctx).Warn("Release idempotency key", zap.String("key", key), zap.Error(rerr))
		}
	}()

	o, err := h.orders.PlaceOrder(ctx, req)
	if err != nil {
		fail(w, r, err)
		return
	}
	completed = true
	if err := h.idem.Complete(context.WithoutCancel(ctx), key, o.ID); err != nil {
		zctx.From(ctx).Warn("Complete idempotency key",
			zap.String("key", key),
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
	}
	writePlaced(w, http.StatusCreated, o)
}

// GetOrder serves GET /api/order/{id} with current product metadata attached
// to each line item.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	d, err := h.orders.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, d.Order, func(e *jx.Encoder) {
			e.ArrStart()
			for _, item := range d.Items {
				e.ObjStart()
				encodeLineItemFields(e, item.LineItem)
				if item.Found {
					e.FieldStart("name")
					e.Str(item.Name)
					e.FieldStart("description")
					e.Str(item.Description)
					e.FieldStart("image_url")
					if item.Image == "" {
						e.Null()
					} else {
						e.Str(h.imageURL(item.Image))
					}
					e.FieldStart("category")
					e.Str(string(item.Category))
				}
				e.ObjEnd()
			}
			e.ArrEnd()
		})
	})
}

// ListOrders serves GET /api/order/all.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i], func(e *jx.Encoder) { encodeLineItems(e, orders[i].Items) })
		}
		e.ArrEnd()
	})
}

// UpdateOrderStatus serves PUT /api/order/{id} with body {"status": ...}.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var status string
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		status = s
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Order status updated successfully")
		e.FieldStart("order_status")
		e.Str(string(o.Status))
		e.ObjEnd()
	})
}

func decodePlaceOrder(w http.ResponseWriter, r *http.Request) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			req.Customer.Name, err = d.Str()
		case "email":
			req.Customer.Email, err = d.Str()
		case "phone":
			req.Customer.Phone, err = d.Str()
		case "address":
			req.Customer.Address, err = d.Str()
		case "totalAmount":
			req.TotalAmount, err = decodeDecimal(d)
		case "promoCode":
			if d.Next() == jx.Null {
				err = d.Null()
			} else {
				req.PromoCode, err = d.Str()
			}
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeRequestItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}

// decodeRequestItem reads a cart line. The storefront sends the product id
// as "id"; "productId" is accepted too. Prices are ignored.
func decodeRequestItem(d *jx.Decoder) (order.RequestItem, error) {
	var item order.RequestItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id", "productId":
			item.ProductID, err = decodeInt64(d)
		case "quantity":
			item.Quantity, err = decodeInt(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return item, err
}

func writePlaced(w http.ResponseWriter, status int, o *order.Order) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(true)
		e.FieldStart("message")
		e.Str("Order placed successfully")
		e.FieldStart("orderId")
		e.Str(o.Reference)
		e.FieldStart("order")
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(o.ID)
		e.FieldStart("orderId")
		e.Str(o.Reference)
		e.FieldStart("name")
		e.Str(o.Customer.Name)
		e.FieldStart("email")
		e.Str(o.Customer.Email)
		e.FieldStart("items")
		encodeLineItems(e, o.Items)
		e.FieldStart("totalAmount")
		encodeMoney(e, o.Total)
		e.FieldStart("promoCode")
		e.Str(o.PromoCode)
		e.FieldStart("discount")
		e.Int(o.Discount)
		e.FieldStart("status")
		e.Str(string(o.Status))
		e.ObjEnd()
		e.ObjEnd()
	})
}

// encodeOrder writes the admin and order detail view. items renders the
// line items array.
func encodeOrder(e *jx.Encoder, o *order.Order, items func(e *jx.Encoder)) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("order_id")
	e.Str(o.Reference)
	e.FieldStart("name")
	e.Str(o.Customer.Name)
	e.FieldStart("email")
	e.Str(o.Customer.Email)
	e.FieldStart("phone")
	e.Str(o.Customer.Phone)
	e.FieldStart("address")
	e.Str(o.Customer.Address)
	e.FieldStart("items")
	items(e)
	e.FieldStart("total_amount")
	encodeMoney(e, o.Total)
	e.FieldStart("promo_code")
	e.Str(o.PromoCode)
	e.FieldStart("discount_applied")
	e.Int(o.Discount)
	e.FieldStart("order_status")
	e.Str(string(o.Status))
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(timeLayout))
	e.ObjEnd()
}

func encodeLineItems(e *jx.Encoder, items []order.LineItem) {
	e.ArrStart()
	for _, item := range items {
		e.ObjStart()
		encodeLineItemFields(e, item)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeLineItemFields(e *jx.Encoder, item order.LineItem) {
	e.FieldStart("id")
	e.Int64(item.ProductID)
	e.FieldStart("quantity")
	e.Int(item.Quantity)
	e.FieldStart("price")
	encodeMoney(e, item.Price)
}
