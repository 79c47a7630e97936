// Package mailer assembles and delivers the outgoing mail for one message
// event: one text part plus the attachments that survive the size filter.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	netmail "net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/gabriel-vasile/mimetype"

	"signalmail/internal/attachment"
	"signalmail/internal/config"
	"signalmail/internal/domain"
)

const connectTimeout = 10 * time.Second

// DeliveryError wraps the transport error behind a failed delivery attempt.
// The event loop treats it as per-message recoverable; the message is lost.
type DeliveryError struct {
	Stage string // "connect", "starttls", "auth", "send", "quit"
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("mail delivery failed during %s: %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Mailer delivers rendered mail over authenticated STARTTLS SMTP.
type Mailer struct {
	smtp     config.SMTPConfig
	maxBytes int64
	logger   *slog.Logger
}

func New(smtpCfg config.SMTPConfig, maxAttachmentMB int64, logger *slog.Logger) *Mailer {
	return &Mailer{
		smtp:     smtpCfg,
		maxBytes: maxAttachmentMB << 20,
		logger:   logger,
	}
}

// Deliver assembles rm into a multipart message and submits it. Any transport
// failure surfaces as a *DeliveryError; assembly failures are returned as-is
// and nothing is sent (mail goes out whole or not at all).
func (m *Mailer) Deliver(ctx context.Context, rm domain.RenderedMail) error {
	msg, err := m.Assemble(rm)
	if err != nil {
		return fmt.Errorf("assemble mail: %w", err)
	}
	return m.submit(ctx, envelopeFrom(rm.From), rm.To, msg)
}

// Assemble builds the full RFC 5322 message: headers, one inline text part,
// and one part per attachment that passes the size filter.
func (m *Mailer) Assemble(rm domain.RenderedMail) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.Set("From", rm.From)
	h.Set("To", strings.Join(rm.To, ", "))
	h.SetSubject(rm.Subject)
	for _, extra := range rm.ExtraHeaders {
		h.Set(extra.Name, extra.Value)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if _, err := io.WriteString(tw, rm.Body); err != nil {
		return nil, fmt.Errorf("write text part: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close text part: %w", err)
	}

	for _, desc := range rm.Attachments {
		part, ok := m.loadPart(desc)
		if !ok {
			continue
		}
		var ah mail.AttachmentHeader
		ah.SetContentType(part.ContentType, nil)
		ah.SetFilename(part.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("create attachment part: %w", err)
		}
		if _, err := aw.Write(part.Data); err != nil {
			return nil, fmt.Errorf("write attachment part: %w", err)
		}
		if err := aw.Close(); err != nil {
			return nil, fmt.Errorf("close attachment part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Part is one attachment resolved for mailing.
type Part struct {
	Filename    string
	ContentType string
	Data        []byte
}

// loadPart applies the size filter (inclusive boundary) and resolves content
// type and filename. Skipped attachments are warnings, never errors.
func (m *Mailer) loadPart(desc attachment.Descriptor) (Part, bool) {
	size, err := desc.Size()
	if err != nil {
		m.logger.Warn("cannot measure attachment, skipping", "path", desc.Path(), "err", err)
		return Part{}, false
	}
	if size > m.maxBytes {
		m.logger.Warn("attachment exceeds size limit, skipping",
			"path", desc.Path(), "size", size, "limit", m.maxBytes)
		return Part{}, false
	}

	data, err := os.ReadFile(desc.Path())
	if err != nil {
		m.logger.Warn("cannot read attachment, skipping", "path", desc.Path(), "err", err)
		return Part{}, false
	}

	ctype := desc.DeclaredContentType()
	sniffed := false
	if ctype == "" {
		ctype = mimetype.Detect(data).String()
		sniffed = true
	}
	if ctype == "" {
		ctype = attachment.DefaultContentType
	}

	name := desc.RemoteName()
	if name == "" {
		// The daemon stores bare-path files without extensions; synthesize
		// one from the sniffed type so mail clients can open the part.
		name = filepath.Base(desc.Path())
		if ext := extensionFor(ctype, sniffed, data); ext != "" && !strings.HasSuffix(name, ext) {
			name += ext
		}
	}

	return Part{Filename: name, ContentType: ctype, Data: data}, true
}

func extensionFor(ctype string, sniffed bool, data []byte) string {
	if sniffed {
		if ext := mimetype.Detect(data).Extension(); ext != "" {
			return ext
		}
	}
	exts, err := mime.ExtensionsByType(ctype)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// envelopeFrom extracts the bare address from a rendered From header value,
// falling back to the raw string when it is not a parseable address.
func envelopeFrom(from string) string {
	if addr, err := netmail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return from
}

// submit opens the SMTP session: connect with a fixed timeout, opportunistic
// STARTTLS, AUTH PLAIN, send, quit. No timeout is imposed on the protocol
// steps after connect beyond the transport default.
func (m *Mailer) submit(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(m.smtp.Host, strconv.Itoa(m.smtp.Port))

	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &DeliveryError{Stage: "connect", Err: err}
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.smtp.Host}); err != nil {
			return &DeliveryError{Stage: "starttls", Err: err}
		}
	}

	if err := c.Auth(sasl.NewPlainClient("", m.smtp.User, m.smtp.Password)); err != nil {
		return &DeliveryError{Stage: "auth", Err: err}
	}

	if err := c.SendMail(from, to, bytes.NewReader(msg)); err != nil {
		return &DeliveryError{Stage: "send", Err: err}
	}

	if err := c.Quit(); err != nil {
		return &DeliveryError{Stage: "quit", Err: err}
	}

	m.logger.Info("mail delivered", "recipients", len(to), "bytes", len(msg))
	return nil
}
