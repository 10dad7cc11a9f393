package notify

import (
	"bytes"
	"html/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// OrderView is the data rendered into order e-mails.
type OrderView struct {
	Reference    string
	CustomerName string
	Email        string
	Phone        string
	Address      string
	Status       string
	Items        []ItemView
	PromoCode    string
	Discount     int
	Total        decimal.Decimal
	PlacedAt     time.Time
}

// ItemView is a single order line in an e-mail.
type ItemView struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// Subtotal is the line total.
func (i ItemView) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":  func(t time.Time) string { return t.UTC().Format("02 Jan 2006 15:04 MST") },
}

const itemsTable = `{{define "items"}}<table cellpadding="6" style="border-collapse:collapse">
<tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th><th align="right">Subtotal</th></tr>
{{range .Items}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">{{money .Price}}</td><td align="right">{{money .Subtotal}}</td></tr>
{{end}}</table>
{{if .PromoCode}}<p>Promo code <b>{{.PromoCode}}</b> applied: {{.Discount}}% off.</p>{{end}}
<p><b>Total: {{money .Total}}</b></p>{{end}}`

const operatorBody = `<h2>New order {{.Reference}}</h2>
<p>Placed {{date .PlacedAt}}</p>
<p>{{.CustomerName}}<br>{{.Email}}<br>{{.Phone}}<br>{{.Address}}</p>
{{template "items" .}}`

const customerBody = `<h2>Thank you for your order, {{.CustomerName}}!</h2>
<p>Your order reference is <b>{{.Reference}}</b>. We will let you know when it ships.</p>
{{template "items" .}}
<p>Delivery address: {{.Address}}</p>`

const statusBody = `<h2>Order {{.Reference}} update</h2>
<p>Hi {{.CustomerName}}, your order is now <b>{{.Status}}</b>.</p>`

// Templates renders the order e-mails. It is safe for concurrent use.
type Templates struct {
	operator *template.Template
	customer *template.Template
	status   *template.Template
}

// NewTemplates parses the built-in e-mail templates.
func NewTemplates() (*Templates, error) {
	parse := func(name, body string) (*template.Template, error) {
		t, err := template.New(name).Funcs(funcs).Parse(itemsTable)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
		if t, err = t.Parse(body); err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
		return t, nil
	}

	var (
		t   Templates
		err error
	)
	if t.operator, err = parse("operator", operatorBody); err != nil {
		return nil, err
	}
	if t.customer, err = parse("customer", customerBody); err != nil {
		return nil, err
	}
	if t.status, err = parse("status", statusBody); err != nil {
		return nil, err
	}
	return &t, nil
}

// OrderPlaced renders the operator alert and the customer confirmation.
// The operator message is skipped when operator is empty.
func (t *Templates) OrderPlaced(operator string, v OrderView) ([]Message, error) {
	var out []Message
	if operator != "" {
		html, err := render(t.operator, v)
		if err != nil {
			return nil, err
		}
		out = append(out, Message{
			To:      operator,
			Subject: "New order " + v.Reference,
			HTML:    html,
		})
	}

	html, err := render(t.customer, v)
	if err != nil {
		return nil, err
	}
	out = append(out, Message{
		To:      v.Email,
		Subject: "Your order " + v.Reference + " is confirmed",
		HTML:    html,
	})
	return out, nil
}

// StatusChanged renders the customer status update.
func (t *Templates) StatusChanged(v OrderView) (Message, error) {
	html, err := render(t.status, v)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      v.Email,
		Subject: "Order " + v.Reference + " is " + v.Status,
		HTML:    html,
	}, nil
}

func render(t *template.Template, v OrderView) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", errors.Wrapf(err, "render %s", t.Name())
	}
	return buf.String(), nil
}
