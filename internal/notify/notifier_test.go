package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFilter(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		event  string
		want   int
	}{
		{"empty filter passes all", nil, EventRoundRotated, 1},
		{"allowed event", []string{EventPositionClosed, " error "}, EventError, 1},
		{"filtered event", []string{EventPositionClosed}, EventPositionOpened, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &recordingSender{name: "rec"}
			n := NewNotifier([]Sender{s}, tt.events, discardLogger())
			if err := n.Notify(context.Background(), tt.event, "t", "m"); err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if len(s.titles) != tt.want {
				t.Fatalf("sent %d, want %d", len(s.titles), tt.want)
			}
		})
	}
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.PositionClosed(context.Background(), domain.ClosedPosition{
		Asset: "BTC", Direction: domain.DirectionUp, ExitReason: domain.ExitTakeProfit,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}
	if len(good.titles) != 1 || good.titles[0] != "Closed BTC UP: take_profit" {
		t.Fatalf("good sender got %v", good.titles)
	}
}

func TestNilNotifierIsDisabled(t *testing.T) {
	var n *Notifier
	if n.Enabled() {
		t.Fatal("nil notifier reports enabled")
	}
	if err := n.Notify(context.Background(), EventError, "t", "m"); err != nil {
		t.Fatalf("nil notifier returned %v", err)
	}
}

func TestRoundRotatedMessage(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	markets := []domain.Market{
		{Asset: "ETH", RoundSlot: 42, ExpiresAt: time.Unix(0, 0)},
		{Asset: "BTC", RoundSlot: 42, ExpiresAt: time.Unix(0, 0)},
	}
	if err := n.RoundRotated(context.Background(), markets); err != nil {
		t.Fatalf("RoundRotated: %v", err)
	}
	if len(s.titles) != 1 || s.titles[0] != "Round 42" {
		t.Fatalf("unexpected titles %v", s.titles)
	}
	if err := n.RoundRotated(context.Background(), nil); err != nil || len(s.titles) != 1 {
		t.Fatalf("empty rotation should not send")
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "chat")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("unexpected path %s", path)
	}
	if got["chat_id"] != "chat" || got["text"] != "*Title*\nbody" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad webhook"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("got %v, want status error", err)
	}
}
