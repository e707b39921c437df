package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type FlagEvent struct {
	ID     int64  `json:"id"`
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Realm  string `json:"realm"`
	Pos    [3]int `json:"pos"`
	Reason string `json:"reason,omitempty"`
}

type SnapshotRecord struct {
	Realm    string `json:"realm"`
	Tick     uint64 `json:"tick"`
	Path     string `json:"path"`
	Entities int    `json:"entities"`
	Flags    int    `json:"flags"`
}

type HistoryQuery struct {
	Action string
	Actor  string
	Limit  int
}

// Reader opens an index for queries only.
type Reader struct{ db *sql.DB }

func OpenReader(path string) (*Reader, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// History returns the newest flag events first.
func (r *Reader) History(ctx context.Context, q HistoryQuery) ([]FlagEvent, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	var where []string
	var args []any
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, strings.ToUpper(q.Action))
	}
	if q.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, q.Actor)
	}
	query := `SELECT id,tick,actor,action,realm,x,y,z,COALESCE(reason,'') FROM flag_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flag events: %w", err)
	}
	defer rows.Close()
	var out []FlagEvent
	for rows.Next() {
		var ev FlagEvent
		var tick int64
		if err := rows.Scan(&ev.ID, &tick, &ev.Actor, &ev.Action, &ev.Realm, &ev.Pos[0], &ev.Pos[1], &ev.Pos[2], &ev.Reason); err != nil {
			return nil, err
		}
		ev.Tick = uint64(tick)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Snapshots returns the latest indexed snapshot per realm.
func (r *Reader) Snapshots(ctx context.Context) ([]SnapshotRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT realm,tick,path,entities,flags FROM snapshots s
		WHERE tick = (SELECT MAX(tick) FROM snapshots WHERE realm = s.realm)
		ORDER BY realm`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()
	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var tick int64
		if err := rows.Scan(&rec.Realm, &tick, &rec.Path, &rec.Entities, &rec.Flags); err != nil {
			return nil, err
		}
		rec.Tick = uint64(tick)
		out = append(out, rec)
	}
	return out, rows.Err()
}
