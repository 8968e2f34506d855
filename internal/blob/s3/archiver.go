package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// archivePrefix is the key prefix of the daily closed position archives.
const archivePrefix = "archive/closed_positions/"

// ClosedHistory is the read side the archiver needs.
type ClosedHistory interface {
	ListRange(ctx context.Context, from, to time.Time) ([]domain.ClosedPosition, error)
}

// ArchiveWriter uploads archive objects. *Writer satisfies it.
type ArchiveWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// Archiver writes one JSON Lines object per UTC day of closed positions.
type Archiver struct {
	history ClosedHistory
	writer  ArchiveWriter
}

// NewArchiver creates an Archiver.
func NewArchiver(history ClosedHistory, writer ArchiveWriter) *Archiver {
	return &Archiver{history: history, writer: writer}
}

// ArchiveKey returns the object key for the given day.
func ArchiveKey(day time.Time) string {
	return archivePrefix + day.UTC().Format("2006-01-02") + ".jsonl"
}

// ArchiveClosed uploads every position closed on the UTC day containing day
// and returns how many were written. Nothing is uploaded for an empty day.
func (a *Archiver) ArchiveClosed(ctx context.Context, day time.Time) (int64, error) {
	d := day.UTC()
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	rows, err := a.history.ListRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list closed positions: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range rows {
		if err := enc.Encode(p); err != nil {
			return 0, fmt.Errorf("s3blob: encode closed position %s: %w", p.ID, err)
		}
	}

	key := ArchiveKey(from)
	const contentType = "application/x-ndjson"
	if int64(buf.Len()) > minPartSize {
		err = a.writer.PutMultipart(ctx, key, &buf, contentType, minPartSize)
	} else {
		err = a.writer.Put(ctx, key, &buf, contentType)
	}
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
