package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/fairyhunter13/points-exchange/internal/model"
)

// Message is a rendered mail.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	At      time.Time
}

var successTmpl = template.Must(template.New("success").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Order delivered</h2>
  <p><strong>Product:</strong> {{.ProductName}}</p>
  <p><strong>Card key:</strong> <span style="font-weight: bold;">{{.CardKey}}</span></p>
  <p><strong>Amount:</strong> {{.Amount}}</p>
  <p><strong>Order:</strong> {{.OrderNo}}</p>
  <p><strong>Delivered at:</strong> {{.At}}</p>
  <hr /><p style="color: #999; font-size: 12px;">This message was sent automatically, please do not reply.</p>
</div>`))

var failureTmpl = template.Must(template.New("failure").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Order could not be delivered</h2>
  <p><strong>Product ID:</strong> {{.ProductID}}</p>
  <p><strong>Amount:</strong> {{.Amount}}</p>
  <p><strong>Order:</strong> {{.OrderNo}}</p>
  <p>Your payment was received but the item could not be delivered automatically.
  The order has been flagged for manual resolution; you will be contacted for delivery or a refund.</p>
  <p><strong>Notified at:</strong> {{.At}}</p>
  <hr /><p style="color: #999; font-size: 12px;">This message was sent automatically, please do not reply.</p>
</div>`))

type view struct {
	ProductID   string
	ProductName string
	CardKey     string
	Amount      string
	OrderNo     string
	At          string
}

// Render builds the mail for a notification. Failure mails never include a
// card key.
func Render(shop, from string, n model.Notification) (Message, error) {
	at := n.At
	if at.IsZero() {
		at = time.Now()
	}
	v := view{
		ProductID: n.ProductID,
		Amount:    n.Amount.StringFixed(2),
		OrderNo:   n.OrderNo,
		At:        at.Format("2006-01-02 15:04:05 MST"),
	}
	tmpl := failureTmpl
	if n.Kind == model.NotifySuccess {
		tmpl = successTmpl
		v.ProductName = n.ProductName
		v.CardKey = n.CardKey
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", n.Kind, err)
	}
	return Message{
		From:    from,
		To:      n.To,
		Subject: fmt.Sprintf("%s: transaction at %s", shop, v.At),
		HTML:    buf.String(),
		At:      at,
	}, nil
}

// Mail builds the MIME message. Non-ASCII headers are RFC 2047 encoded and
// Date and Message-ID are always set.
func (m Message) Mail() (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("from %q: %w", m.From, err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("to %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetDateWithValue(m.At)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	return msg, nil
}
