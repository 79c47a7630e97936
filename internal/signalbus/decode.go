package signalbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"signalmail/internal/attachment"
	"signalmail/internal/domain"
	"signalmail/internal/mention"
)

// decodeLegacyMessage decodes the pre-V2 MessageReceived body:
// (timestamp, sender, groupId, message, attachmentPaths).
func decodeLegacyMessage(body []any) (domain.LegacyMessageEvent, error) {
	var e domain.LegacyMessageEvent
	if len(body) != 5 {
		return e, fmt.Errorf("legacy message body has %d fields, want 5", len(body))
	}
	var ok bool
	if e.TimestampMillis, ok = asInt64(body[0]); !ok {
		return e, fmt.Errorf("legacy message timestamp is %T", body[0])
	}
	if e.Sender, ok = body[1].(string); !ok {
		return e, fmt.Errorf("legacy message sender is %T", body[1])
	}
	e.GroupID, _ = body[2].([]byte)
	if e.Body, ok = body[3].(string); !ok {
		return e, fmt.Errorf("legacy message text is %T", body[3])
	}
	switch paths := flatten(body[4]).(type) {
	case []string:
		e.AttachmentPaths = paths
	case []any:
		for _, p := range paths {
			s, ok := p.(string)
			if !ok {
				return e, fmt.Errorf("legacy attachment path is %T", p)
			}
			e.AttachmentPaths = append(e.AttachmentPaths, s)
		}
	case nil:
	default:
		return e, fmt.Errorf("legacy attachment list is %T", body[4])
	}
	return e, nil
}

// decodeMessageV2 decodes the current MessageReceivedV2 body:
// (timestamp, sender, groupId, message, extras) where extras optionally
// carries "mentions" and "attachments".
func decodeMessageV2(body []any, attachmentDir string) (domain.MessageEvent, error) {
	var e domain.MessageEvent
	if len(body) != 5 {
		return e, fmt.Errorf("message body has %d fields, want 5", len(body))
	}
	var ok bool
	if e.TimestampMillis, ok = asInt64(body[0]); !ok {
		return e, fmt.Errorf("message timestamp is %T", body[0])
	}
	if e.Sender, ok = body[1].(string); !ok {
		return e, fmt.Errorf("message sender is %T", body[1])
	}
	e.GroupID, _ = body[2].([]byte)
	if e.Body, ok = body[3].(string); !ok {
		return e, fmt.Errorf("message text is %T", body[3])
	}

	extras, ok := flatten(body[4]).(map[string]any)
	if !ok && body[4] != nil {
		return e, fmt.Errorf("message extras is %T", body[4])
	}

	if raw, present := extras["mentions"]; present {
		spans, err := decodeMentions(raw)
		if err != nil {
			return e, err
		}
		e.Mentions = spans
	}
	if raw, present := extras["attachments"]; present {
		list, ok := raw.([]any)
		if !ok {
			return e, fmt.Errorf("attachments extra is %T", raw)
		}
		for _, item := range list {
			desc, err := attachment.FromPayload(item, attachmentDir)
			if err != nil {
				return e, err
			}
			e.Attachments = append(e.Attachments, desc)
		}
	}
	return e, nil
}

// decodeMentions accepts both shapes the daemon has emitted: records with
// recipient/start/length keys, or 3-tuples in that order.
func decodeMentions(raw any) ([]mention.Span, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("mentions extra is %T", raw)
	}
	spans := make([]mention.Span, 0, len(list))
	for _, item := range list {
		switch m := item.(type) {
		case map[string]any:
			recipient, _ := m["recipient"].(string)
			start, ok1 := asInt64(m["start"])
			length, ok2 := asInt64(m["length"])
			if recipient == "" || !ok1 || !ok2 {
				return nil, fmt.Errorf("malformed mention record %v", m)
			}
			spans = append(spans, mention.Span{Recipient: recipient, Start: int(start), Length: int(length)})
		case []any:
			if len(m) != 3 {
				return nil, fmt.Errorf("mention tuple has %d fields, want 3", len(m))
			}
			recipient, ok0 := m[0].(string)
			start, ok1 := asInt64(m[1])
			length, ok2 := asInt64(m[2])
			if !ok0 || !ok1 || !ok2 {
				return nil, fmt.Errorf("malformed mention tuple %v", m)
			}
			spans = append(spans, mention.Span{Recipient: recipient, Start: int(start), Length: int(length)})
		default:
			return nil, fmt.Errorf("mention entry is %T", item)
		}
	}
	return spans, nil
}

// decodeReceipt decodes both receipt generations: (timestamp, sender, ...).
func decodeReceipt(body []any) (domain.ReceiptEvent, error) {
	var e domain.ReceiptEvent
	if len(body) < 2 {
		return e, fmt.Errorf("receipt body has %d fields, want >= 2", len(body))
	}
	var ok bool
	if e.TimestampMillis, ok = asInt64(body[0]); !ok {
		return e, fmt.Errorf("receipt timestamp is %T", body[0])
	}
	if e.Sender, ok = body[1].(string); !ok {
		return e, fmt.Errorf("receipt sender is %T", body[1])
	}
	return e, nil
}

// decodeSync decodes both sync generations:
// (timestamp, source, destination, groupId, message, ...).
func decodeSync(body []any) (domain.SyncMessageEvent, error) {
	var e domain.SyncMessageEvent
	if len(body) < 5 {
		return e, fmt.Errorf("sync body has %d fields, want >= 5", len(body))
	}
	var ok bool
	if e.TimestampMillis, ok = asInt64(body[0]); !ok {
		return e, fmt.Errorf("sync timestamp is %T", body[0])
	}
	if e.Sender, ok = body[1].(string); !ok {
		return e, fmt.Errorf("sync sender is %T", body[1])
	}
	e.Destination, _ = body[2].(string)
	e.GroupID, _ = body[3].([]byte)
	e.Body, _ = body[4].(string)
	return e, nil
}

// flatten recursively unwraps dbus variants so the rest of the pipeline sees
// plain Go values: a{sv} becomes map[string]any, av becomes []any.
func flatten(v any) any {
	switch t := v.(type) {
	case dbus.Variant:
		return flatten(t.Value())
	case map[string]dbus.Variant:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = flatten(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = flatten(item)
		}
		return out
	case []dbus.Variant:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = flatten(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = flatten(item)
		}
		return out
	default:
		return v
	}
}

// asInt64 tolerates the integer widths the bus codec may deliver.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
