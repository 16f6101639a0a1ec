package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailSink emails the notify address carried by each crossing.
type MailSink struct {
	cfg  SMTPConfig
	send func(ctx context.Context, m *gomail.Message) error
}

func NewMailSink(cfg SMTPConfig) *MailSink {
	s := &MailSink{cfg: cfg}
	s.send = s.dialAndSend
	return s
}

func (s *MailSink) Name() string { return "email" }

// Send mails ev to its address. An empty address is skipped.
func (s *MailSink) Send(ctx context.Context, ev CrossingEvent) error {
	to := strings.TrimSpace(ev.Address)
	if to == "" {
		return nil
	}
	msg, err := s.Message(ev)
	if err != nil {
		return err
	}
	return s.send(ctx, msg)
}

// Message renders the alert for ev.
func (s *MailSink) Message(ev CrossingEvent) (*gomail.Message, error) {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}
	var html bytes.Buffer
	if err := alertTemplate.Execute(&html, ev); err != nil {
		return nil, fmt.Errorf("render alert: %w", err)
	}
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", strings.TrimSpace(ev.Address))
	m.SetHeader("Subject", "SNMP alert: "+ev.Summary())
	m.SetBody("text/plain", fmt.Sprintf("SNMP alert: CPU usage %d%% exceeded the configured threshold of %d%% at %s.", ev.Sample, ev.Threshold, ev.Timestamp))
	m.AddAlternative("text/html", html.String())
	return m, nil
}

func (s *MailSink) dialAndSend(ctx context.Context, m *gomail.Message) error {
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var alertTemplate = template.Must(template.New("alert").Parse(`<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px;">
  <div style="max-width: 600px; background: white; border-radius: 10px; padding: 20px;">
    <h2 style="color: #d9534f;">SNMP alert: CPU threshold exceeded</h2>
    <p>The agent detected CPU usage above the configured threshold.</p>
    <table style="width: 100%; border-collapse: collapse;">
      <tr><td><strong>CPU usage:</strong></td><td>{{.Sample}}%</td></tr>
      <tr><td><strong>Threshold:</strong></td><td>{{.Threshold}}%</td></tr>
      <tr><td><strong>Time:</strong></td><td>{{.Timestamp}}</td></tr>
    </table>
    <hr>
    <p style="font-size: 12px; color: gray;">Sent automatically by mibagent.</p>
  </div>
</body>
</html>
`))
