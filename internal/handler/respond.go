package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/auth"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/order"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
	"github.com/shoaibmehmood243/lensciaga/internal/idempotency"
)

const (
	maxBodySize = 1 << 20
	timeLayout  = time.RFC3339
)

// writeJSON renders the body produced by fn with the given status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	fn(e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeMessage renders {"message": msg}.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// writeError renders {"code": status, "error": kind, "message": msg}.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("error")
		e.Str(kind)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// fail maps a domain error to a response. Unexpected errors are logged and
// reported without details.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		orderValidation   *order.ValidationError
		productValidation *product.ValidationError
		promoValidation   *promo.ValidationError
		authValidation    *auth.ValidationError
		outOfStock        *order.OutOfStockError
		reqErr            *requestError
	)
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, "bad_request", reqErr.Error())
	case errors.As(err, &orderValidation),
		errors.As(err, &productValidation),
		errors.As(err, &promoValidation),
		errors.As(err, &authValidation):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.As(err, &outOfStock):
		writeError(w, http.StatusConflict, "out_of_stock", outOfStock.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, promo.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, promo.ErrDuplicateCode),
		errors.Is(err, auth.ErrAdminExists):
		writeError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, idempotency.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// requestError reports a body or parameter that could not be parsed.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &requestError{msg: msg, err: err}
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id "+strconv.Quote(raw), nil)
	}
	return id, nil
}

// decodeBody walks the top-level JSON object of the request body.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body", err)
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		return badRequest("decode body", err)
	}
	return nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	default:
		return decimal.Decimal{}, errors.New("expected number")
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse %q", raw)
	}
	return v, nil
}

// decodeInt accepts both JSON integers and numeric strings, since the admin
// dashboard posts form values as strings.
func decodeInt(d *jx.Decoder) (int, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(strings.TrimSpace(s))
	}
	return d.Int()
}

func decodeInt64(d *jx.Decoder) (int64, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}
	return d.Int64()
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.RawStr(v.StringFixed(2))
}
