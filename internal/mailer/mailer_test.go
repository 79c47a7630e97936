package mailer

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"

	"signalmail/internal/attachment"
	"signalmail/internal/config"
	"signalmail/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testMailer(maxMB int64) *Mailer {
	return New(config.SMTPConfig{Host: "mail.example.org", Port: 587, User: "u", Password: "p"}, maxMB, testLogger())
}

// parsed pulls the text body and attachment parts back out of an assembled
// message.
func parsed(t *testing.T, msg []byte) (body string, parts []Part) {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("parse assembled mail: %v", err)
	}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		data, err := io.ReadAll(p.Body)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			body += string(data)
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			ctype, _, _ := h.ContentType()
			parts = append(parts, Part{Filename: name, ContentType: ctype, Data: data})
		}
	}
	return body, parts
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAssemble_TextAndAttachment(t *testing.T) {
	path := writeFile(t, "img", []byte("fake jpeg bytes"))
	rm := domain.RenderedMail{
		From:    "signalmail <bot@example.org>",
		To:      []string{"you@example.org"},
		Subject: "New Signal message",
		ExtraHeaders: []domain.Header{
			{Name: "X-Signal-Sender", Value: "+4912345"},
		},
		Body: "hello there\n",
		Attachments: []attachment.Descriptor{
			attachment.RichRecord(path, "image/jpeg", "photo.jpg", 15),
		},
	}

	msg, err := testMailer(5).Assemble(rm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if !bytes.Contains(msg, []byte("X-Signal-Sender: +4912345")) {
		t.Error("extra header missing from message")
	}

	body, parts := parsed(t, msg)
	if !strings.Contains(body, "hello there") {
		t.Errorf("body = %q, want it to contain the text", body)
	}
	if len(parts) != 1 {
		t.Fatalf("attachment parts = %d, want 1", len(parts))
	}
	if parts[0].Filename != "photo.jpg" {
		t.Errorf("filename = %q, want photo.jpg", parts[0].Filename)
	}
	if parts[0].ContentType != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", parts[0].ContentType)
	}
	if string(parts[0].Data) != "fake jpeg bytes" {
		t.Errorf("attachment bytes not preserved")
	}
}

func TestAssemble_SizeBoundaryInclusive(t *testing.T) {
	limit := int64(5) << 20
	atLimit := writeFile(t, "at", []byte("x"))
	overLimit := writeFile(t, "over", []byte("y"))

	rm := domain.RenderedMail{
		From: "bot@example.org", To: []string{"you@example.org"}, Subject: "s", Body: "b",
		Attachments: []attachment.Descriptor{
			attachment.RichRecord(atLimit, "text/plain", "at.txt", limit),
			attachment.RichRecord(overLimit, "text/plain", "over.txt", limit+1),
		},
	}

	msg, err := testMailer(5).Assemble(rm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	_, parts := parsed(t, msg)
	if len(parts) != 1 {
		t.Fatalf("parts = %d, want 1 (inclusive boundary keeps at-limit, drops one byte over)", len(parts))
	}
	if parts[0].Filename != "at.txt" {
		t.Errorf("kept %q, want at.txt", parts[0].Filename)
	}
}

func TestAssemble_BarePathSniffsAndNames(t *testing.T) {
	data := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 24)...)
	path := writeFile(t, "3124325", data)

	rm := domain.RenderedMail{
		From: "bot@example.org", To: []string{"you@example.org"}, Subject: "s", Body: "b",
		Attachments: []attachment.Descriptor{attachment.BarePath(path)},
	}

	msg, err := testMailer(5).Assemble(rm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	_, parts := parsed(t, msg)
	if len(parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(parts))
	}
	if parts[0].ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", parts[0].ContentType)
	}
	if parts[0].Filename != "3124325.png" {
		t.Errorf("filename = %q, want 3124325.png", parts[0].Filename)
	}
}

func TestAssemble_MissingAttachmentSkippedNotFatal(t *testing.T) {
	rm := domain.RenderedMail{
		From: "bot@example.org", To: []string{"you@example.org"}, Subject: "s", Body: "still sent",
		Attachments: []attachment.Descriptor{attachment.BarePath("/no/such/file")},
	}
	msg, err := testMailer(5).Assemble(rm)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	body, parts := parsed(t, msg)
	if len(parts) != 0 {
		t.Errorf("parts = %d, want 0", len(parts))
	}
	if !strings.Contains(body, "still sent") {
		t.Error("text body should survive attachment skip")
	}
}

func TestDeliver_ConnectFailureIsDeliveryError(t *testing.T) {
	m := New(config.SMTPConfig{Host: "127.0.0.1", Port: 1, User: "u", Password: "p"}, 5, testLogger())
	err := m.Deliver(t.Context(), domain.RenderedMail{
		From: "bot@example.org", To: []string{"you@example.org"}, Subject: "s", Body: "b",
	})
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DeliveryError", err)
	}
	if de.Stage != "connect" {
		t.Errorf("stage = %q, want connect", de.Stage)
	}
}

func TestEnvelopeFrom(t *testing.T) {
	if got := envelopeFrom("Signal Mail <bot@example.org>"); got != "bot@example.org" {
		t.Errorf("envelopeFrom = %q", got)
	}
	if got := envelopeFrom("not-an-address"); got != "not-an-address" {
		t.Errorf("envelopeFrom fallback = %q", got)
	}
}
