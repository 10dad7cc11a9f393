package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
)

// ValidatePromo serves GET /api/promo/validate/{code}. An unknown code is a
// regular 404 answer with success=false.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	v, err := h.promos.Validate(r.Context(), chi.URLParam(r, "code"))
	if errors.Is(err, promo.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("success")
			e.Bool(false)
			e.FieldStart("message")
			e.Str("Invalid promo code")
			e.ObjEnd()
		})
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(true)
		e.FieldStart("data")
		e.ObjStart()
		e.FieldStart("code")
		e.Str(v.Code)
		e.FieldStart("discountPercentage")
		e.Int(v.DiscountPercentage)
		e.FieldStart("maxDiscount")
		encodeNullMoney(e, v.MaxDiscount)
		e.ObjEnd()
		e.ObjEnd()
	})
}

// ListPromos serves GET /api/promo/all.
func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	codes, err := h.promos.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range codes {
			encodePromo(e, &codes[i])
		}
		e.ArrEnd()
	})
}

// CreatePromo serves POST /api/promo.
func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	c, err := decodePromo(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.promos.Create(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Promo code added")
		e.FieldStart("promo")
		encodePromo(e, c)
		e.ObjEnd()
	})
}

// UpdatePromo serves PUT /api/promo/{id}.
func (h *Handler) UpdatePromo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := decodePromo(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c.ID = id
	if err := h.promos.Update(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Promo code updated successfully")
}

// DeletePromo serves DELETE /api/promo/{id}.
func (h *Handler) DeletePromo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.promos.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Promo code deleted successfully")
}

func decodePromo(w http.ResponseWriter, r *http.Request) (*promo.Code, error) {
	c := &promo.Code{}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "discount":
			c.Discount, err = decodeInt(d)
		case "maxDiscount", "max_discount":
			if d.Next() == jx.Null {
				c.MaxDiscount = decimal.NullDecimal{}
				return d.Null()
			}
			var v decimal.Decimal
			v, err = decodeDecimal(d)
			c.MaxDiscount = decimal.NewNullDecimal(v)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func encodePromo(e *jx.Encoder, c *promo.Code) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discount")
	e.Int(c.Discount)
	e.FieldStart("max_discount")
	encodeNullMoney(e, c.MaxDiscount)
	e.FieldStart("created_at")
	e.Str(c.CreatedAt.UTC().Format(timeLayout))
	e.ObjEnd()
}

func encodeNullMoney(e *jx.Encoder, v decimal.NullDecimal) {
	if !v.Valid {
		e.Null()
		return
	}
	encodeMoney(e, v.Decimal)
}
