package db

import (
	"context"
	"database/sql"
	"time"
)

// Summary is what the admin stats view shows from the journal.
type Summary struct {
	Posts            int
	LastPostAt       sql.NullInt64
	Broadcasts       int
	LastBroadcastAt  sql.NullInt64
	BroadcastReached int
}

func (s Summary) LastPost() (time.Time, bool) {
	if !s.LastPostAt.Valid {
		return time.Time{}, false
	}
	return time.Unix(s.LastPostAt.Int64, 0), true
}

func (s Summary) LastBroadcast() (time.Time, bool) {
	if !s.LastBroadcastAt.Valid {
		return time.Time{}, false
	}
	return time.Unix(s.LastBroadcastAt.Int64, 0), true
}

func (d *DB) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(1), MAX(created_at) FROM posts`).Scan(&s.Posts, &s.LastPostAt)
	if err != nil {
		return Summary{}, err
	}
	err = d.sql.QueryRowContext(ctx, `SELECT COUNT(1), MAX(finished_at), COALESCE(SUM(delivered),0) FROM broadcasts`).
		Scan(&s.Broadcasts, &s.LastBroadcastAt, &s.BroadcastReached)
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}
