package signalbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"signalmail/internal/attachment"
	"signalmail/internal/domain"
)

const signalBuffer = 32

// Subscriber routes daemon notifications to a typed handler, one method per
// event kind. Signals are delivered strictly one at a time: each notification
// is handled to completion before the next is read.
type Subscriber struct {
	conn          *dbus.Conn
	attachmentDir string
	handler       domain.Handler
	logger        *slog.Logger
}

func NewSubscriber(sess *Session, attachmentDir string, handler domain.Handler, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		conn:          sess.Conn,
		attachmentDir: attachmentDir,
		handler:       handler,
		logger:        logger,
	}
}

// Run subscribes to the daemon's notification interface and blocks until ctx
// is cancelled or the bus connection drops.
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.conn.AddMatchSignal(dbus.WithMatchInterface(busInterface)); err != nil {
		return fmt.Errorf("subscribe to daemon signals: %w", err)
	}

	ch := make(chan *dbus.Signal, signalBuffer)
	s.conn.Signal(ch)
	defer s.conn.RemoveSignal(ch)

	s.logger.Info("daemon subscription started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("daemon subscription stopping")
			return nil
		case sig, ok := <-ch:
			if !ok {
				return errors.New("bus connection closed")
			}
			s.dispatch(ctx, sig)
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, sig *dbus.Signal) {
	switch sig.Name {
	case busInterface + ".MessageReceivedV2":
		e, err := decodeMessageV2(sig.Body, s.attachmentDir)
		if err != nil {
			s.reject(sig.Name, err)
			return
		}
		s.handler.MessageReceived(ctx, e)

	case busInterface + ".MessageReceived":
		e, err := decodeLegacyMessage(sig.Body)
		if err != nil {
			s.reject(sig.Name, err)
			return
		}
		s.handler.LegacyMessageReceived(ctx, e)

	case busInterface + ".ReceiptReceivedV2":
		e, err := decodeReceipt(sig.Body)
		if err != nil {
			s.reject(sig.Name, err)
			return
		}
		s.handler.ReceiptReceived(ctx, e)

	case busInterface + ".ReceiptReceived":
		e, err := decodeReceipt(sig.Body)
		if err != nil {
			s.reject(sig.Name, err)
			return
		}
		s.handler.LegacyReceiptReceived(ctx, e)

	case busInterface + ".SyncMessageReceivedV2":
		e, err := decodeSync(sig.Body)
		if err != nil {
			s.reject(sig.Name, err)
			return
		}
		s.handler.SyncMessageReceived(ctx, e)

	case busInterface + ".SyncMessageReceived":
		e, err := decodeSync(sig.Body)
		if err != nil {
			s.reject(sig.Name, err)
			return
		}
		s.handler.LegacySyncMessageReceived(ctx, e)

	default:
		s.logger.Debug("ignoring unrelated signal", "name", sig.Name)
	}
}

// reject drops one notification whose payload cannot be interpreted. An
// unsupported attachment shape means the daemon speaks a protocol generation
// we do not know; that aborts the affected message, never the process.
func (s *Subscriber) reject(name string, err error) {
	if errors.Is(err, attachment.ErrUnsupportedShape) {
		s.logger.Error("protocol contract violation, dropping notification", "signal", name, "err", err)
		return
	}
	s.logger.Warn("undecodable notification dropped", "signal", name, "err", err)
}
