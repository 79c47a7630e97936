package domain

import "context"

// Messenger is the daemon command surface used for auto-replies and name
// lookups. Implemented by the negotiated D-Bus client; faked in tests.
type Messenger interface {
	// SendMessage sends text (with optional attachment paths) to recipient.
	SendMessage(ctx context.Context, text string, attachmentPaths []string, recipient string) error
	// ContactName resolves a display name for an account id. Empty string
	// means unknown.
	ContactName(ctx context.Context, id string) (string, error)
	// GroupName resolves a display name for a group id. Empty string means
	// unknown.
	GroupName(ctx context.Context, groupID []byte) (string, error)
}

// Handler receives daemon notifications, one method per bus event kind.
// The subscription registers exactly one handler and invokes it from a single
// goroutine: each notification is processed to completion before the next.
type Handler interface {
	MessageReceived(ctx context.Context, e MessageEvent)
	LegacyMessageReceived(ctx context.Context, e LegacyMessageEvent)
	ReceiptReceived(ctx context.Context, e ReceiptEvent)
	LegacyReceiptReceived(ctx context.Context, e ReceiptEvent)
	SyncMessageReceived(ctx context.Context, e SyncMessageEvent)
	LegacySyncMessageReceived(ctx context.Context, e SyncMessageEvent)
}
