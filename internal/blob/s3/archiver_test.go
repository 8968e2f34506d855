package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

type fakeHistory struct {
	rows     []domain.ClosedPosition
	from, to time.Time
	err      error
}

func (h *fakeHistory) ListRange(_ context.Context, from, to time.Time) ([]domain.ClosedPosition, error) {
	h.from, h.to = from, to
	return h.rows, h.err
}

type fakeWriter struct {
	key         string
	contentType string
	body        []byte
	multipart   bool
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	w.key, w.contentType = path, contentType
	w.body, _ = io.ReadAll(data)
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, contentType string, _ int64) error {
	w.multipart = true
	return w.Put(context.Background(), path, data, contentType)
}

func TestArchiveClosed(t *testing.T) {
	day := time.Date(2026, 3, 4, 17, 30, 0, 0, time.UTC)
	h := &fakeHistory{rows: []domain.ClosedPosition{
		{ID: "a", Asset: "BTC", ExitReason: domain.ExitTakeProfit},
		{ID: "b", Asset: "ETH", ExitReason: domain.ExitStopLoss},
	}}
	w := &fakeWriter{}

	n, err := NewArchiver(h, w).ArchiveClosed(context.Background(), day)
	if err != nil {
		t.Fatalf("ArchiveClosed: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d rows, want 2", n)
	}
	if want := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC); !h.from.Equal(want) || !h.to.Equal(want.AddDate(0, 0, 1)) {
		t.Fatalf("queried [%v, %v), want the UTC day", h.from, h.to)
	}
	if w.key != "archive/closed_positions/2026-03-04.jsonl" || w.multipart {
		t.Fatalf("unexpected upload key=%s multipart=%v", w.key, w.multipart)
	}

	sc := bufio.NewScanner(bytes.NewReader(w.body))
	var ids []string
	for sc.Scan() {
		var p domain.ClosedPosition
		if err := json.Unmarshal(sc.Bytes(), &p); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		ids = append(ids, p.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected archived ids %v", ids)
	}
}

func TestArchiveClosedEmptyDay(t *testing.T) {
	w := &fakeWriter{}
	n, err := NewArchiver(&fakeHistory{}, w).ArchiveClosed(context.Background(), time.Now())
	if err != nil || n != 0 || w.key != "" {
		t.Fatalf("empty day: n=%d err=%v key=%q", n, err, w.key)
	}
}

func TestArchiveClosedListError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewArchiver(&fakeHistory{err: boom}, &fakeWriter{}).ArchiveClosed(context.Background(), time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"e2.example.com", true, "https://e2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.want)
		}
	}
}
