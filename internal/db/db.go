package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DB is an append-only journal of what the bot sent: scheduled deal posts and
// admin broadcasts. The bot configuration itself lives in the JSON store.
type DB struct {
	sql *sql.DB
}

func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := &DB{sql: sqldb}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqldb.Close()
		return nil, errors.Wrap(err, "migrate history db")
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			post_id TEXT PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			raw_url TEXT NOT NULL,
			final_url TEXT NOT NULL,
			price TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS broadcasts (
			broadcast_id TEXT PRIMARY KEY,
			admin_id INTEGER NOT NULL,
			recipients INTEGER NOT NULL,
			delivered INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at);`,
	}
	for _, s := range stmts {
		if _, err := d.sql.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

type Post struct {
	PostID    string
	ChatID    int64
	MessageID int
	Title     string
	RawURL    string
	FinalURL  string
	Price     string
	CreatedAt time.Time
}

// RecordPost stores a sent deal post. An empty PostID gets a fresh one.
func (d *DB) RecordPost(ctx context.Context, p Post) (Post, error) {
	if p.PostID == "" {
		p.PostID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO posts(post_id,chat_id,message_id,title,raw_url,final_url,price,created_at) VALUES(?,?,?,?,?,?,?,?)`,
		p.PostID, p.ChatID, p.MessageID, p.Title, p.RawURL, p.FinalURL, p.Price, p.CreatedAt.Unix())
	if err != nil {
		return Post{}, errors.Wrap(err, "insert post")
	}
	return p, nil
}

type Broadcast struct {
	BroadcastID string
	AdminID     int64
	Recipients  int
	Delivered   int
	Failed      int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// RecordBroadcast stores the summary of one fan-out.
func (d *DB) RecordBroadcast(ctx context.Context, b Broadcast) (Broadcast, error) {
	if b.BroadcastID == "" {
		b.BroadcastID = uuid.New().String()
	}
	if b.FinishedAt.IsZero() {
		b.FinishedAt = time.Now()
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = b.FinishedAt
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO broadcasts(broadcast_id,admin_id,recipients,delivered,failed,started_at,finished_at) VALUES(?,?,?,?,?,?,?)`,
		b.BroadcastID, b.AdminID, b.Recipients, b.Delivered, b.Failed, b.StartedAt.Unix(), b.FinishedAt.Unix())
	if err != nil {
		return Broadcast{}, errors.Wrap(err, "insert broadcast")
	}
	return b, nil
}

// RecentPosts returns up to limit posts, newest first.
func (d *DB) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT post_id,chat_id,message_id,title,raw_url,final_url,price,created_at FROM posts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Post
	for rows.Next() {
		var p Post
		var created int64
		if err := rows.Scan(&p.PostID, &p.ChatID, &p.MessageID, &p.Title, &p.RawURL, &p.FinalURL, &p.Price, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(created, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}
