package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/events"
)

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

var (
	receiptTmpl = template.Must(template.New("receipt").Parse(
		`<p>Hi {{.Name}},</p>
<p>Thanks for your order. We received your payment of <strong>${{.Total}}</strong>{{if .Monthly}} per month{{end}}.</p>
<p>Order reference: {{.OrderID}}</p>
<p>We will be in touch shortly to get started.</p>`))
	paidAdminTmpl = template.Must(template.New("paid-admin").Parse(
		`<p>New paid order {{.OrderID}}.</p>
<p>Customer: {{.Name}} &lt;{{.Email}}&gt;</p>
<p>Plan: {{.Plan}}. Total: ${{.Total}}.</p>`))
	leadAdminTmpl = template.Must(template.New("lead-admin").Parse(
		`<p>New lead from {{.Name}} &lt;{{.Email}}&gt;.</p>
<p>{{.Message}}</p>`))
)

type paidData struct {
	OrderID    string `json:"order_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Plan       string `json:"plan"`
	TotalCents int64  `json:"total_cents"`
}

type leadData struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Render builds the emails for a task. Topics without templates render nothing.
func Render(task EmailTask, adminEmail string) ([]Message, error) {
	adminEmail = strings.TrimSpace(adminEmail)
	switch task.Topic {
	case events.TopicCheckoutPaid:
		var d paidData
		if err := json.Unmarshal(task.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", task.Topic, err)
		}
		view := map[string]any{
			"OrderID": d.OrderID,
			"Name":    fallback(d.Name, "there"),
			"Email":   d.Email,
			"Plan":    d.Plan,
			"Total":   common.FormatCents(d.TotalCents),
			"Monthly": d.Plan == "monthly",
		}
		var out []Message
		if d.Email != "" {
			body, err := execute(receiptTmpl, view)
			if err != nil {
				return nil, err
			}
			out = append(out, Message{To: d.Email, Subject: "Your order is confirmed", HTML: body})
		}
		if adminEmail != "" {
			body, err := execute(paidAdminTmpl, view)
			if err != nil {
				return nil, err
			}
			out = append(out, Message{To: adminEmail, Subject: "New paid order " + d.OrderID, HTML: body})
		}
		return out, nil
	case events.TopicLeadReceived:
		if adminEmail == "" {
			return nil, nil
		}
		var d leadData
		if err := json.Unmarshal(task.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", task.Topic, err)
		}
		body, err := execute(leadAdminTmpl, map[string]any{
			"Name":    fallback(d.Name, "unknown"),
			"Email":   d.Email,
			"Message": d.Message,
		})
		if err != nil {
			return nil, err
		}
		return []Message{{To: adminEmail, Subject: "New lead: " + fallback(d.Name, d.Email), HTML: body}}, nil
	default:
		return nil, nil
	}
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
