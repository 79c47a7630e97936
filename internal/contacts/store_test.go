package contacts

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

type fakeMessenger struct {
	names map[string]string
	calls int
	fail  bool
}

func (f *fakeMessenger) SendMessage(ctx context.Context, text string, attachments []string, recipient string) error {
	return nil
}

func (f *fakeMessenger) ContactName(ctx context.Context, id string) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("daemon gone")
	}
	return f.names[id], nil
}

func (f *fakeMessenger) GroupName(ctx context.Context, groupID []byte) (string, error) {
	return "", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T, static map[string]string) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "contacts.db"), static, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResolve_ConfigBeatsDaemon(t *testing.T) {
	m := &fakeMessenger{names: map[string]string{"+491": "Daemon Alice"}}
	r := NewResolver(newTestStore(t, map[string]string{"+491": "Config Alice"}), m)

	if got := r.Resolve(context.Background(), "+491"); got != "Config Alice" {
		t.Errorf("Resolve = %q, want Config Alice", got)
	}
	if m.calls != 0 {
		t.Errorf("daemon should not be consulted, got %d calls", m.calls)
	}
}

func TestResolve_DaemonResultIsCached(t *testing.T) {
	m := &fakeMessenger{names: map[string]string{"+492": "Ben"}}
	r := NewResolver(newTestStore(t, nil), m)

	ctx := context.Background()
	if got := r.Resolve(ctx, "+492"); got != "Ben" {
		t.Fatalf("first Resolve = %q, want Ben", got)
	}
	if got := r.Resolve(ctx, "+492"); got != "Ben" {
		t.Fatalf("second Resolve = %q, want Ben", got)
	}
	if m.calls != 1 {
		t.Errorf("daemon calls = %d, want 1 (cache hit on second lookup)", m.calls)
	}
}

func TestResolve_UnknownIsEmpty(t *testing.T) {
	r := NewResolver(newTestStore(t, nil), &fakeMessenger{})
	if got := r.Resolve(context.Background(), "+499"); got != "" {
		t.Errorf("Resolve = %q, want empty", got)
	}
}

func TestResolve_DaemonFailureDegrades(t *testing.T) {
	r := NewResolver(newTestStore(t, nil), &fakeMessenger{fail: true})
	if got := r.Resolve(context.Background(), "+499"); got != "" {
		t.Errorf("Resolve = %q, want empty on daemon failure", got)
	}
}
