package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atlas-capital/atlas-portal/internal/jobs"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers email messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig describes the relay used by SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Send writes msg to the relay. Auth is only attempted when a username is set.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return errors.New("smtp: header injection rejected")
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	return s.send(addr, auth, s.cfg.From, []string{msg.To}, s.build(msg))
}

func (s *SMTPSender) build(msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return buf.Bytes()
}

const passwordResetSubject = "Atlas Capital - Redefinição de senha"

var passwordResetBody = template.Must(template.New("reset").Parse(`Olá{{if .Name}}, {{.Name}}{{end}}.

Recebemos um pedido para redefinir a senha da sua conta Atlas Capital.
Use o link abaixo para escolher uma nova senha:

{{.Link}}

Se você não fez este pedido, ignore este email. Sua senha continua a mesma.
`))

// EmailJob renders and sends transactional emails.
type EmailJob struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewEmailJob initialises the email handler.
func NewEmailJob(sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *EmailJob {
	return &EmailJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// HandlePasswordReset processes TaskPasswordReset tasks.
func (j *EmailJob) HandlePasswordReset(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil {
		return errors.New("password reset: sender not configured")
	}
	var payload PasswordResetPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := payload.validate(); err != nil {
		j.logger().Warn("drop password reset task", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskPasswordReset)
	defer func() {
		err = tracker.End(err)
	}()

	var body bytes.Buffer
	if err := passwordResetBody.Execute(&body, payload); err != nil {
		return err
	}
	msg := Message{To: payload.Email, Subject: passwordResetSubject, Body: body.String()}
	if err := j.Sender.Send(ctx, msg); err != nil {
		j.logger().Error("send password reset", slog.String("to", payload.Email), slog.Any("error", err))
		return err
	}
	j.Metrics.EmailSent("password_reset")
	j.logger().Info("password reset sent", slog.String("to", payload.Email))
	return nil
}

func (j *EmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
