// Package notify e-mails account owners when a trade opens and closes.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"strings"

	"scalper/internal/config"
	"scalper/internal/execution"
)

// SendFunc delivers a prepared message. It matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends trade notifications over SMTP.
type Mailer struct {
	cfg  config.NotifyConfig
	send SendFunc
}

var _ execution.Notifier = (*Mailer)(nil)

func NewMailer(cfg config.NotifyConfig) *Mailer {
	m := &Mailer{cfg: cfg}
	if cfg.Port == "465" {
		m.send = sendTLS
	} else {
		// STARTTLS (587) or plain (25).
		m.send = smtp.SendMail
	}
	return m
}

// WithSender replaces the transport.
func (m *Mailer) WithSender(send SendFunc) *Mailer {
	m.send = send
	return m
}

// Configured reports whether the mailer can send at all.
func (m *Mailer) Configured() bool {
	return m.cfg.Enabled && m.cfg.Host != "" && m.cfg.From != ""
}

func (m *Mailer) SendInitialEmail(ctx context.Context, account execution.Account, st execution.State) error {
	subject := fmt.Sprintf("[%s] Trade opened on %s", st.Strategy.Name, st.Symbol)
	body := page("Trade opened", [][2]string{
		{"Account", account.Name},
		{"Market", st.Symbol},
		{"Strategy", st.Strategy.Name},
		{"Interval", st.Interval},
		{"Invested", fmt.Sprintf("%.2f %s", st.Invested, st.Origin)},
		{"Entry price", fmt.Sprintf("%.8g", st.EntryPrice)},
		{"Amount", fmt.Sprintf("%.8g %s", st.Amount, st.Target)},
		{"Stop price", fmt.Sprintf("%.8g", st.StopPrice)},
		{"Started", st.StartedAt.Format("2006-01-02 15:04:05 MST")},
	})
	return m.deliver(ctx, account, subject, body)
}

func (m *Mailer) SendFinalEmail(ctx context.Context, account execution.Account, st execution.State) error {
	subject := fmt.Sprintf("[%s] Trade closed on %s: %+.2f%%", st.Strategy.Name, st.Symbol, st.ProfitPercent)
	rows := [][2]string{
		{"Account", account.Name},
		{"Market", st.Symbol},
		{"Strategy", st.Strategy.Name},
		{"Invested", fmt.Sprintf("%.2f %s", st.Invested, st.Origin)},
		{"Retrieved", fmt.Sprintf("%.2f %s", st.Retrieved, st.Origin)},
		{"Profit", fmt.Sprintf("%+.2f %s (%+.2f%%)", st.Profit, st.Origin, st.ProfitPercent)},
		{"Run-up", fmt.Sprintf("%.2f%%", st.RunUp)},
		{"Draw-down", fmt.Sprintf("%.2f%%", st.DrawDown)},
		{"Balance", fmt.Sprintf("%.2f -> %.2f %s", st.InitialBalance, st.FinalBalance, st.Origin)},
	}
	if st.Error != "" {
		rows = append(rows, [2]string{"Error", st.Error})
	}
	return m.deliver(ctx, account, subject, page("Trade closed", rows))
}

func (m *Mailer) deliver(ctx context.Context, account execution.Account, subject, body string) error {
	if !m.Configured() || account.Email == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.From)
	}
	msg := []byte(
		"From: " + from + "\r\n" +
			"To: " + account.Email + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n",
	)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := m.cfg.Host + ":" + m.cfg.Port
	if err := m.send(addr, auth, m.cfg.From, []string{account.Email}, msg); err != nil {
		return fmt.Errorf("SMTP error: %w", err)
	}
	slog.Debug("email sent", "to", account.Email, "subject", subject)
	return nil
}

func page(title string, rows [][2]string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        table { border-collapse: collapse; }
        td { padding: 4px 12px; border-bottom: 1px solid #e5e7eb; }
        td.key { color: #666; }
    </style>
</head>
<body>
`)
	fmt.Fprintf(&b, "    <h2>%s</h2>\n    <table>\n", html.EscapeString(title))
	for _, r := range rows {
		fmt.Fprintf(&b, "        <tr><td class=\"key\">%s</td><td>%s</td></tr>\n", html.EscapeString(r[0]), html.EscapeString(r[1]))
	}
	b.WriteString("    </table>\n</body>\n</html>\n")
	return b.String()
}

// sendTLS sends over an implicit TLS connection (port 465).
func sendTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host := strings.Split(addr, ":")[0]
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("connecting to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("adding recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("opening data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data writer: %w", err)
	}
	return client.Quit()
}
