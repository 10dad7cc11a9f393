package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
)

// ListProducts serves GET /api/product.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			h.encodeProduct(e, &products[i])
		}
		e.ArrEnd()
	})
}

// GetProduct serves GET /api/product/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

// CreateProduct serves POST /api/product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	p, err := decodeProduct(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Product added successfully")
		e.FieldStart("product")
		h.encodeProduct(e, p)
		e.ObjEnd()
	})
}

// UpdateProduct serves PUT /api/product/{id}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := decodeProduct(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p.ID = id
	if err := h.products.Update(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Product updated successfully")
		e.FieldStart("product")
		h.encodeProduct(e, p)
		e.ObjEnd()
	})
}

// DeleteProduct serves DELETE /api/product/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Product deleted successfully")
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (*product.Product, error) {
	p := &product.Product{}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "category":
			var c string
			c, err = d.Str()
			p.Category = product.Category(strings.ToLower(strings.TrimSpace(c)))
		case "quantity":
			p.Quantity, err = decodeInt(d)
		case "images":
			p.Images = []string{}
			err = d.Arr(func(d *jx.Decoder) error {
				img, err := d.Str()
				if err != nil {
					return err
				}
				p.Images = append(p.Images, img)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// imageURL resolves a stored image reference for clients. Absolute URLs are
// returned unchanged.
func (h *Handler) imageURL(ref string) string {
	if ref == "" || h.cfg.ImageBaseURL == "" || strings.Contains(ref, "://") {
		return ref
	}
	return strings.TrimRight(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("category")
	e.Str(string(p.Category))
	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(h.imageURL(img))
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	e.Str(p.CreatedAt.UTC().Format(timeLayout))
	e.ObjEnd()
}
