// Package store implements the authoritative durable store for boards and
// objects (spec §4.2, component C2): SQLite for the rows, NATS core for
// fanning change events out to board hubs without hubs polling SQLite.
//
// Grounded on the teacher's pkg/database (sql.Open + embedded migration
// runner, ON CONFLICT DO UPDATE merge-write idiom) generalized from one
// "document" row per editing session to many typed object rows per board,
// and on adred-codev-ws_poc's pkg/nats client wiring for the bus.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/silapakurthi/collabboard/pkg/ids"
	"github.com/silapakurthi/collabboard/pkg/model"
)

// Mode selects create-or-fail versus merge-or-create write semantics
// (spec §4.2).
type Mode string

const (
	ModeCreate Mode = "create"
	ModeMerge  Mode = "merge"
)

// ChangeKind discriminates the three kinds of document change a
// subscription delivers (spec §4.2).
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Removed  ChangeKind = "removed"
)

// ChangeEvent is what subscribe() delivers for every change to an object,
// including the synthetic "added" events of the initial snapshot.
type ChangeEvent struct {
	Kind      ChangeKind     `json:"kind"`
	BoardID   string         `json:"boardId"`
	DocID     string         `json:"docId"`
	Fields    map[string]any `json:"fields,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Write is one element of an atomic batch (spec §4.2 batch(writes[])).
type Write struct {
	BoardID string
	DocID   string
	Fields  map[string]any // ignored when Delete is true
	Mode    Mode
	Delete  bool
}

// ErrAlreadyExists is returned by a ModeCreate write whose docId is taken.
var ErrAlreadyExists = errors.New("store: document already exists")

// Store is the durable board/object store.
type Store struct {
	db  *sql.DB
	bus eventBus
}

// Open opens (and migrates) the SQLite database and attaches the change
// bus. Passing a nil bus (no NATS server configured) falls back to an
// in-process bus, so hubs in a single-instance deployment still see their
// own committed writes; pass a *Bus from NewBus for multi-instance fanout.
func Open(sqliteURI string, bus *Bus) (*Store, error) {
	db, err := sql.Open("sqlite3", sqliteURI)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every hub, API handler and the agent share this *sql.DB; capping it
	// at one connection avoids SQLITE_BUSY. Reads and writes therefore all
	// go through that single connection, one at a time.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var eb eventBus = newLocalBus()
	if bus != nil {
		eb = bus
	}

	return &Store{db: db, bus: eb}, nil
}

func (s *Store) Close() error {
	s.bus.Close()
	return s.db.Close()
}

// CreateBoard inserts a new board row.
func (s *Store) CreateBoard(ctx context.Context, b model.Board) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO boards (id, name, created_by, created_at) VALUES (?, ?, ?, ?)",
		b.ID, b.Name, b.CreatedBy, b.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	return nil
}

// DeleteBoard cascades to both of the board's sub-collections (spec §3
// "destroyed explicitly (cascades both sub-collections)").
func (s *Store) DeleteBoard(ctx context.Context, boardID string) error {
	rows, err := s.readRows(ctx, boardID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM objects WHERE board_id = ?", boardID); err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM boards WHERE id = ?", boardID); err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	now := ids.Now()
	for _, r := range rows {
		s.publish(ChangeEvent{Kind: Removed, BoardID: boardID, DocID: r.id, UpdatedAt: now})
	}
	return nil
}

// GetBoard loads a board by id.
func (s *Store) GetBoard(ctx context.Context, boardID string) (*model.Board, error) {
	var b model.Board
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_by, created_at FROM boards WHERE id = ?", boardID,
	).Scan(&b.ID, &b.Name, &b.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &b, nil
}

type objectRow struct {
	id        string
	typ       string
	updatedAt int64
	docJSON   string
}

func (s *Store) readRows(ctx context.Context, boardID string) ([]objectRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, updated_at, doc_json FROM objects WHERE board_id = ?", boardID)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	var out []objectRow
	for rows.Next() {
		var r objectRow
		if err := rows.Scan(&r.id, &r.typ, &r.updatedAt, &r.docJSON); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadServer bypasses any local cache and reads straight from SQLite
// (spec §4.2 readServer) — this implementation has no cache layer, so this
// and the normal read path are the same query, documented here rather than
// duplicated as two code paths.
func (s *Store) ReadServer(ctx context.Context, boardID string) ([]map[string]any, error) {
	rows, err := s.readRows(ctx, boardID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		fields, err := decodeDoc(r.docJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, fields)
	}
	return out, nil
}

func decodeDoc(docJSON string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(docJSON), &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

// Put writes a single document (spec §4.2 put). ModeMerge succeeds even if
// the document is absent — it is then treated as a create — which is the
// mechanism the agent relies on to tolerate fabricated ids (§4.2 failure
// semantics).
func (s *Store) Put(ctx context.Context, w Write) (map[string]any, error) {
	fields, kind, err := s.applyWrite(ctx, s.db, w)
	if err != nil {
		return nil, err
	}
	s.publish(ChangeEvent{Kind: kind, BoardID: w.BoardID, DocID: w.DocID, Fields: fields, UpdatedAt: ids.Now()})
	return fields, nil
}

// Delete idempotently removes a document (spec §4.2 delete).
func (s *Store) Delete(ctx context.Context, boardID, docID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM objects WHERE board_id = ? AND id = ?", boardID, docID)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	s.publish(ChangeEvent{Kind: Removed, BoardID: boardID, DocID: docID, UpdatedAt: ids.Now()})
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx so applyWrite can run
// inside or outside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Batch applies every write atomically: either all land or none do. After
// the commit it publishes one change event per write, so subscribers
// receive the batch as separate events and never see a failed batch; the
// batch is not delivered as a single event.
func (s *Store) Batch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	type pending struct {
		kind   ChangeKind
		fields map[string]any
		write  Write
	}
	results := make([]pending, 0, len(writes))

	now := ids.Now()
	for _, w := range writes {
		if w.Delete {
			if _, err := tx.ExecContext(ctx, "DELETE FROM objects WHERE board_id = ? AND id = ?", w.BoardID, w.DocID); err != nil {
				return fmt.Errorf("batch delete %s: %w", w.DocID, err)
			}
			results = append(results, pending{kind: Removed, write: w})
			continue
		}
		fields, kind, err := s.applyWriteAt(ctx, tx, w, now)
		if err != nil {
			return fmt.Errorf("batch write %s: %w", w.DocID, err)
		}
		results = append(results, pending{kind: kind, fields: fields, write: w})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	for _, r := range results {
		s.publish(ChangeEvent{Kind: r.kind, BoardID: r.write.BoardID, DocID: r.write.DocID, Fields: r.fields, UpdatedAt: now})
	}
	return nil
}

func (s *Store) applyWrite(ctx context.Context, db execer, w Write) (map[string]any, ChangeKind, error) {
	return s.applyWriteAt(ctx, db, w, ids.Now())
}

// applyWriteAt performs the create-or-merge upsert. Every write stamps
// updatedAt = now() server-side (spec §4.2); clients must never set it
// themselves (spec §4.3), which is enforced by overwriting whatever the
// caller put in w.Fields["updatedAt"].
func (s *Store) applyWriteAt(ctx context.Context, db execer, w Write, now time.Time) (map[string]any, ChangeKind, error) {
	var existing sql.NullString
	err := db.QueryRowContext(ctx,
		"SELECT doc_json FROM objects WHERE board_id = ? AND id = ?", w.BoardID, w.DocID,
	).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("lookup existing: %w", err)
	}

	kind := Modified
	merged := map[string]any{}
	if existing.Valid {
		if err := json.Unmarshal([]byte(existing.String), &merged); err != nil {
			return nil, "", fmt.Errorf("decode existing document: %w", err)
		}
	} else {
		if w.Mode == ModeCreate {
			kind = Added
		} else {
			// merge on an absent document behaves like a create (spec §4.2).
			kind = Added
		}
	}
	if w.Mode == ModeCreate && existing.Valid {
		return nil, "", ErrAlreadyExists
	}

	for k, v := range w.Fields {
		merged[k] = v
	}
	merged["updatedAt"] = now.Format(time.RFC3339Nano)

	typ, _ := merged["type"].(string)
	docJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, "", fmt.Errorf("encode document: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO objects (board_id, id, type, updated_at, doc_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(board_id, id) DO UPDATE SET
			type = excluded.type,
			updated_at = excluded.updated_at,
			doc_json = excluded.doc_json
	`, w.BoardID, w.DocID, typ, now.UnixMilli(), string(docJSON))
	if err != nil {
		return nil, "", fmt.Errorf("upsert object: %w", err)
	}

	return merged, kind, nil
}

// Subscribe delivers the current snapshot as synthetic "added" events
// followed by live changes from the bus (spec §4.4 "new subscriber
// receives, as its first delivery, the full current object set").
func (s *Store) Subscribe(ctx context.Context, boardID string) (<-chan ChangeEvent, func(), error) {
	out := make(chan ChangeEvent, 256)

	// Subscribe to the bus before reading the snapshot: a write committed
	// in between would otherwise publish with no subscriber registered yet
	// and never reach this caller.
	var unsubscribe func()
	live, unsub, err := s.bus.Subscribe(boardID)
	if err != nil {
		log.Warn().Err(err).Str("board_id", boardID).Msg("change bus subscribe failed, falling back to snapshot-only")
	} else {
		unsubscribe = unsub
		go func() {
			defer close(out)
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-live:
					if !ok {
						return
					}
					out <- evt
				}
			}
		}()
	}
	if unsubscribe == nil {
		unsubscribe = func() {}
		close(out)
	}

	rows, err := s.readRows(ctx, boardID)
	if err != nil {
		unsubscribe()
		return nil, func() {}, err
	}

	// Prepend the snapshot by sending it before returning a channel that
	// also carries live events: deliver synchronously so the caller sees
	// the snapshot strictly before any live event, matching the ordering
	// guarantee in spec §4.4.
	snapshot := make(chan ChangeEvent, len(rows)+1)
	for _, r := range rows {
		fields, err := decodeDoc(r.docJSON)
		if err != nil {
			continue
		}
		snapshot <- ChangeEvent{Kind: Added, BoardID: boardID, DocID: r.id, Fields: fields, UpdatedAt: time.UnixMilli(r.updatedAt).UTC()}
	}
	close(snapshot)

	merged := make(chan ChangeEvent, 256)
	go func() {
		defer close(merged)
		for evt := range snapshot {
			merged <- evt
		}
		for evt := range out {
			merged <- evt
		}
	}()

	return merged, unsubscribe, nil
}

func (s *Store) publish(evt ChangeEvent) {
	if err := s.bus.Publish(evt); err != nil {
		log.Warn().Err(err).Str("board_id", evt.BoardID).Msg("change bus publish failed")
	}
}
