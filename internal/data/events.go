// Package data is the persistence boundary: Postgres via database/sql with
// the lib/pq driver. Models take a DBTX so call sites can pass either the
// pool or a transaction.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var ErrRecordNotFound = errors.New("record not found")

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// EventKind matches the seeded event_type rows.
type EventKind int

const (
	EventHazard EventKind = 1
	EventUnauth EventKind = 2
	EventRescue EventKind = 3
)

// KindForClass derives the event kind from the detection class: people who
// should not be airside are unauthorized entries, wildlife needs a rescue or
// dispersal response, everything else is a hazard on the surface.
func KindForClass(class string) EventKind {
	switch class {
	case "PERSON", "WORK_PERSON":
		return EventUnauth
	case "BIRD", "ANIMAL":
		return EventRescue
	default:
		return EventHazard
	}
}

// objectTypeIDs matches the seeded object_type rows.
var objectTypeIDs = map[string]int{
	"BIRD":         1,
	"FOD":          2,
	"PERSON":       3,
	"ANIMAL":       4,
	"AIRPLANE":     5,
	"VEHICLE":      6,
	"WORK_PERSON":  7,
	"WORK_VEHICLE": 8,
}

// ObjectTypeID resolves a class tag; unknown tags map to FOD, the catch-all
// foreign-object class.
func ObjectTypeID(class string) int {
	if id, ok := objectTypeIDs[class]; ok {
		return id
	}
	return objectTypeIDs["FOD"]
}

// Event is one first-observation row in detect_event.
type Event struct {
	ID         int64
	Kind       EventKind
	ObjectID   string
	Class      string
	MapX       int
	MapY       int
	AreaID     int
	OccurredAt time.Time
	ImgPath    string
}

// EventModel persists first-observation events and their JPEG crops.
type EventModel struct {
	DB      DBTX
	CropDir string
}

// CropPath derives the crop filename from the identity and instant, so a
// retried save overwrites rather than accumulates.
func (m EventModel) CropPath(objectID string, at time.Time) string {
	return filepath.Join(m.CropDir, fmt.Sprintf("img_%s_%s.jpg", objectID, at.UTC().Format("20060102150405")))
}

// Save writes the crop file and inserts one row. Idempotent: the unique key
// (object_id, occurred_at) plus ON CONFLICT DO NOTHING make a repeated save
// succeed without a duplicate. On success e.ImgPath is filled in.
func (m EventModel) Save(ctx context.Context, e *Event, jpegCrop []byte) error {
	path := m.CropPath(e.ObjectID, e.OccurredAt)
	if len(jpegCrop) > 0 {
		if err := os.MkdirAll(m.CropDir, 0o755); err != nil {
			return fmt.Errorf("crop dir: %w", err)
		}
		if err := os.WriteFile(path, jpegCrop, 0o644); err != nil {
			return fmt.Errorf("write crop: %w", err)
		}
	}

	typeID := ObjectTypeID(e.Class)
	if _, err := m.DB.ExecContext(ctx, `
		INSERT INTO detected_object (object_id, object_type_id)
		VALUES ($1, $2)
		ON CONFLICT (object_id) DO NOTHING`,
		e.ObjectID, typeID); err != nil {
		return fmt.Errorf("insert detected_object: %w", err)
	}

	if _, err := m.DB.ExecContext(ctx, `
		INSERT INTO detect_event
			(event_type_id, object_id, object_type_id, map_x, map_y, area_id, occurred_at, img_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (object_id, occurred_at) DO NOTHING`,
		int(e.Kind), e.ObjectID, typeID, e.MapX, e.MapY, nullableAreaID(e.AreaID),
		e.OccurredAt.UTC(), path); err != nil {
		return fmt.Errorf("insert detect_event: %w", err)
	}

	e.ImgPath = path
	return nil
}

// Detections outside every seeded area carry no area reference.
func nullableAreaID(id int) any {
	if id == 0 {
		return nil
	}
	return id
}

const eventColumns = `
	de.event_id, de.event_type_id, de.object_id, ot.name, de.map_x, de.map_y,
	de.area_id, de.occurred_at, de.img_path`

// GetByObjectID returns the most recent event for one object identity.
func (m EventModel) GetByObjectID(ctx context.Context, objectID string) (*Event, error) {
	row := m.DB.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM detect_event de
		JOIN object_type ot ON ot.object_type_id = de.object_type_id
		WHERE de.object_id = $1
		ORDER BY de.occurred_at DESC
		LIMIT 1`, objectID)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListRecent returns the newest events, newest first.
func (m EventModel) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := m.DB.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM detect_event de
		JOIN object_type ot ON ot.object_type_id = de.object_type_id
		ORDER BY de.occurred_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*Event, error) {
	var e Event
	var kind int
	var area sql.NullInt64
	if err := r.Scan(&e.ID, &kind, &e.ObjectID, &e.Class, &e.MapX, &e.MapY,
		&area, &e.OccurredAt, &e.ImgPath); err != nil {
		return nil, err
	}
	e.Kind = EventKind(kind)
	e.AreaID = int(area.Int64)
	return &e, nil
}
