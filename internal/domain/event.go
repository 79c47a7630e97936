package domain

import (
	"signalmail/internal/attachment"
	"signalmail/internal/mention"
)

// MessageEvent is the canonical incoming message, independent of which daemon
// protocol generation produced it. Constructed by the bus subscription and
// consumed synchronously; never persisted. Mention spans arrive in
// non-decreasing start order from the daemon and are never re-sorted.
type MessageEvent struct {
	TimestampMillis int64
	Sender          string
	GroupID         []byte // empty = direct message
	Body            string
	Mentions        []mention.Span
	Attachments     []attachment.Descriptor
}

// LegacyMessageEvent is the pre-V2 message notification shape: no mentions,
// attachments delivered as bare local paths.
type LegacyMessageEvent struct {
	TimestampMillis int64
	Sender          string
	GroupID         []byte
	Body            string
	AttachmentPaths []string
}

// SyncMessageEvent is a multi-device sync echo. Observed for subscription
// completeness; produces no mail.
type SyncMessageEvent struct {
	TimestampMillis int64
	Sender          string
	Destination     string
	GroupID         []byte
	Body            string
}

// ReceiptEvent is a delivery/read receipt notification.
type ReceiptEvent struct {
	TimestampMillis int64
	Sender          string
}

// RenderedMail is one fully assembled outgoing mail, built fresh per event.
// Attachments still reference the daemon's files on disk; the mail dispatcher
// filters, reads, and names them during assembly.
type RenderedMail struct {
	From         string
	To           []string
	Subject      string
	ExtraHeaders []Header
	Body         string
	Attachments  []attachment.Descriptor
}

// Header is one extra mail header with its already-rendered value.
// Order is preserved; entries with empty values are dropped by the renderer.
type Header struct {
	Name  string
	Value string
}
