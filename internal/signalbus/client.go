package signalbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// Client implements domain.Messenger against the negotiated daemon object.
type Client struct {
	obj    dbus.BusObject
	logger *slog.Logger
}

func NewClient(sess *Session, logger *slog.Logger) *Client {
	return &Client{obj: sess.Object, logger: logger}
}

// SendMessage sends text with optional attachment paths to recipient.
func (c *Client) SendMessage(ctx context.Context, text string, attachmentPaths []string, recipient string) error {
	if attachmentPaths == nil {
		attachmentPaths = []string{}
	}
	call := c.obj.CallWithContext(ctx, busInterface+".sendMessage", 0, text, attachmentPaths, recipient)
	if call.Err != nil {
		return fmt.Errorf("sendMessage to %s: %w", recipient, call.Err)
	}
	return nil
}

// ContactName resolves the display name for an account id; "" means unknown.
func (c *Client) ContactName(ctx context.Context, id string) (string, error) {
	var name string
	err := c.obj.CallWithContext(ctx, busInterface+".getContactName", 0, id).Store(&name)
	if err != nil {
		return "", fmt.Errorf("getContactName %s: %w", id, err)
	}
	return name, nil
}

// GroupName resolves the display name for a group id; "" means unknown.
func (c *Client) GroupName(ctx context.Context, groupID []byte) (string, error) {
	var name string
	err := c.obj.CallWithContext(ctx, busInterface+".getGroupName", 0, groupID).Store(&name)
	if err != nil {
		return "", fmt.Errorf("getGroupName: %w", err)
	}
	return name, nil
}
