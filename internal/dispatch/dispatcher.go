// Package dispatch turns daemon notifications into outgoing mail. It owns the
// one-way guard that keeps the two daemon protocol generations from handling
// the same message twice.
package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ncruces/go-strftime"

	"signalmail/internal/attachment"
	"signalmail/internal/config"
	"signalmail/internal/domain"
	"signalmail/internal/mention"
	"signalmail/internal/metrics"
	"signalmail/internal/tmpl"
)

// bodySeparator sits between the expanded message text and the signature.
const bodySeparator = "\n\n"

// unknownSender is the display name used when no source can resolve one.
const unknownSender = "unknown"

// Mailer delivers one rendered mail. Implemented by internal/mailer.
type Mailer interface {
	Deliver(ctx context.Context, rm domain.RenderedMail) error
}

// NameResolver resolves a sender id to a display name ("" = unknown).
// Implemented by internal/contacts.
type NameResolver interface {
	Resolve(ctx context.Context, id string) string
}

// Dispatcher is the single entry point for all daemon notifications.
type Dispatcher struct {
	cfg       *config.Config
	messenger domain.Messenger
	names     NameResolver
	mailer    Mailer
	logger    *slog.Logger

	// currentAPISeen latches once a V2 notification arrives. The daemon may
	// fire both generations for the same logical message; only the V2 shape
	// is authoritative, and legacy notifications become no-ops for the rest
	// of the process lifetime. Set-once semantics survive even if the bus
	// layer ever grows a second goroutine.
	currentAPISeen atomic.Bool
}

func New(cfg *config.Config, messenger domain.Messenger, names NameResolver, mailer Mailer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		messenger: messenger,
		names:     names,
		mailer:    mailer,
		logger:    logger,
	}
}

// MessageReceived handles a current-shape message notification.
func (d *Dispatcher) MessageReceived(ctx context.Context, e domain.MessageEvent) {
	d.currentAPISeen.Store(true)
	d.handle(ctx, e)
}

// LegacyMessageReceived handles a pre-V2 message notification. It is the
// fallback signal, not the authoritative one: it never sets the latch, and it
// is ignored entirely once a current-shape notification has been observed.
func (d *Dispatcher) LegacyMessageReceived(ctx context.Context, e domain.LegacyMessageEvent) {
	if d.currentAPISeen.Load() {
		metrics.LegacyDropped.Inc()
		d.logger.Debug("legacy message ignored, current API active", "sender", e.Sender)
		return
	}
	attachments := make([]attachment.Descriptor, 0, len(e.AttachmentPaths))
	for _, p := range e.AttachmentPaths {
		attachments = append(attachments, attachment.BarePath(p))
	}
	d.handle(ctx, domain.MessageEvent{
		TimestampMillis: e.TimestampMillis,
		Sender:          e.Sender,
		GroupID:         e.GroupID,
		Body:            e.Body,
		Attachments:     attachments,
	})
}

// ReceiptReceived observes a current-shape receipt. Receipts produce no mail;
// they exist so the subscription is exhaustive, and so the latch learns the
// daemon speaks the current API.
func (d *Dispatcher) ReceiptReceived(ctx context.Context, e domain.ReceiptEvent) {
	d.currentAPISeen.Store(true)
	d.logger.Debug("receipt received", "sender", e.Sender)
}

func (d *Dispatcher) LegacyReceiptReceived(ctx context.Context, e domain.ReceiptEvent) {
	if d.currentAPISeen.Load() {
		return
	}
	d.logger.Debug("legacy receipt received", "sender", e.Sender)
}

// SyncMessageReceived observes a multi-device sync echo; no action.
func (d *Dispatcher) SyncMessageReceived(ctx context.Context, e domain.SyncMessageEvent) {
	d.currentAPISeen.Store(true)
	d.logger.Debug("sync message received", "sender", e.Sender)
}

func (d *Dispatcher) LegacySyncMessageReceived(ctx context.Context, e domain.SyncMessageEvent) {
	if d.currentAPISeen.Load() {
		return
	}
	d.logger.Debug("legacy sync message received", "sender", e.Sender)
}

// handle runs the canonical per-message pipeline: auto-reply, name
// resolution, mention expansion, template rendering, mail dispatch,
// attachment cleanup. Failures after the exclusion check are per-message:
// logged, never fatal.
func (d *Dispatcher) handle(ctx context.Context, e domain.MessageEvent) {
	if d.cfg.Signal.IsIgnored(e.Sender) {
		metrics.SendersExcluded.Inc()
		d.logger.Debug("sender excluded, dropping event", "sender", e.Sender)
		return
	}
	metrics.MessagesTotal.Inc()

	timestamp := d.formatTimestamp(e.TimestampMillis)

	d.autoReply(ctx, e, timestamp)

	senderName := d.names.Resolve(ctx, e.Sender)
	if senderName == "" {
		senderName = unknownSender
	}

	groupName := ""
	if len(e.GroupID) > 0 {
		name, err := d.messenger.GroupName(ctx, e.GroupID)
		if err != nil {
			d.logger.Warn("group name lookup failed", "err", err)
		}
		groupName = name
	}

	expanded := mention.Expand(e.Body, e.Mentions, func(recipient string) string {
		return d.names.Resolve(ctx, recipient)
	})

	reps := []tmpl.Replacement{
		{Token: "{senderId}", Value: e.Sender},
		{Token: "{senderName}", Value: senderName},
		{Token: "{groupId}", Value: base64.StdEncoding.EncodeToString(e.GroupID)},
		{Token: "{groupName}", Value: groupName},
		{Token: "{timestamp}", Value: timestamp},
	}

	rm := domain.RenderedMail{
		From:         tmpl.Render(d.cfg.Mail.From, reps),
		To:           d.cfg.Mail.RecipientList(),
		Subject:      tmpl.Render(d.cfg.Mail.Subject, reps),
		ExtraHeaders: d.renderHeaders(reps),
		Body:         d.assembleBody(expanded, reps),
		Attachments:  e.Attachments,
	}

	if d.cfg.General.SendMail {
		start := time.Now()
		if err := d.mailer.Deliver(ctx, rm); err != nil {
			metrics.MailFailures.Inc()
			d.logger.Error("mail delivery failed, message lost", "sender", e.Sender, "err", err)
		} else {
			metrics.MailsSent.Inc()
		}
		metrics.MailLatency.Observe(time.Since(start).Seconds())
	} else {
		d.logger.Debug("mail sending disabled, skipping delivery", "sender", e.Sender)
	}

	if d.cfg.General.DeleteAttachments {
		d.cleanupAttachments(e.Attachments)
	}
}

// autoReply sends the configured reply back to the sender. A failure here is
// reported and never suppresses the mail that follows.
func (d *Dispatcher) autoReply(ctx context.Context, e domain.MessageEvent, timestamp string) {
	if d.cfg.Reply.Text == "" || e.Sender == "" {
		return
	}
	text := tmpl.Render(d.cfg.Reply.Text, []tmpl.Replacement{
		{Token: "{senderId}", Value: e.Sender},
		{Token: "{timestamp}", Value: timestamp},
	})
	var paths []string
	if d.cfg.Reply.Attach != "" {
		paths = []string{d.cfg.Reply.Attach}
	}
	if err := d.messenger.SendMessage(ctx, text, paths, e.Sender); err != nil {
		d.logger.Warn("auto-reply failed", "sender", e.Sender, "err", err)
		return
	}
	metrics.RepliesSent.Inc()
}

// renderHeaders renders the configured extra headers in sorted name order,
// omitting any header whose rendered value is empty.
func (d *Dispatcher) renderHeaders(reps []tmpl.Replacement) []domain.Header {
	if len(d.cfg.Mail.Headers) == 0 {
		return nil
	}
	names := make([]string, 0, len(d.cfg.Mail.Headers))
	for name := range d.cfg.Mail.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []domain.Header
	for _, name := range names {
		value := tmpl.Render(d.cfg.Mail.Headers[name], reps)
		if value == "" {
			continue
		}
		out = append(out, domain.Header{Name: name, Value: value})
	}
	return out
}

func (d *Dispatcher) assembleBody(expanded string, reps []tmpl.Replacement) string {
	body := tmpl.Render(d.cfg.Mail.Heading, reps) + "\n" + expanded
	if sig := tmpl.Render(d.cfg.Mail.Signature, reps); sig != "" {
		body += bodySeparator + sig
	}
	return body
}

// cleanupAttachments unlinks every attachment file once, whether or not the
// mail actually attached it: cleanup is about not leaving daemon-managed
// files behind. A file already gone is a no-op.
func (d *Dispatcher) cleanupAttachments(attachments []attachment.Descriptor) {
	for _, desc := range attachments {
		err := os.Remove(desc.Path())
		switch {
		case err == nil:
			metrics.AttachmentsRemoved.Inc()
			d.logger.Debug("attachment removed", "path", desc.Path())
		case errors.Is(err, fs.ErrNotExist):
			// already gone
		default:
			d.logger.Warn("cannot remove attachment", "path", desc.Path(), "err", err)
		}
	}
}

// formatTimestamp truncates the daemon's epoch-millisecond timestamp to whole
// seconds and renders it in the local time zone with the configured strftime
// pattern.
func (d *Dispatcher) formatTimestamp(millis int64) string {
	t := time.Unix(millis/1000, 0)
	return strftime.Format(d.cfg.Mail.TimestampFormat, t)
}
