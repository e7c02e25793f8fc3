package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sony/sonyflake"
)

type MySQL struct {
	db *sql.DB
	sf *sonyflake.Sonyflake
}

type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	ConnMaxIdle  time.Duration
	PingTimeout  time.Duration
}

func OpenMySQL(opt Options) (*MySQL, error) {
	if opt.MaxOpenConns <= 0 {
		opt.MaxOpenConns = 50
	}
	if opt.MaxIdleConns <= 0 {
		opt.MaxIdleConns = 25
	}
	if opt.ConnMaxLife == 0 {
		opt.ConnMaxLife = 30 * time.Minute
	}
	if opt.ConnMaxIdle == 0 {
		opt.ConnMaxIdle = 5 * time.Minute
	}
	if opt.PingTimeout == 0 {
		opt.PingTimeout = 2 * time.Second
	}

	db, err := sql.Open("mysql", opt.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(opt.MaxOpenConns)
	db.SetMaxIdleConns(opt.MaxIdleConns)
	db.SetConnMaxLifetime(opt.ConnMaxLife)
	db.SetConnMaxIdleTime(opt.ConnMaxIdle)

	ctx, cancel := context.WithTimeout(context.Background(), opt.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	sf := sonyflake.NewSonyflake(sonyflake.Settings{})
	if sf == nil {
		_ = db.Close()
		return nil, errors.New("sonyflake init failed")
	}
	return &MySQL{db: db, sf: sf}, nil
}

func (s *MySQL) Create(ctx context.Context, username, text string) (Record, error) {
	id, err := s.sf.NextID()
	if err != nil {
		return Record{}, err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO messages (id, username, text, create_time, update_time)
VALUES (?, ?, ?, ?, ?)
`, int64(id), username, text, now, now)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        strconv.FormatUint(id, 10),
		Username:  username,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *MySQL) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, username, text, create_time, update_time
FROM messages
ORDER BY create_time ASC, id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var id int64
		if err := rows.Scan(&id, &r.Username, &r.Text, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.ID = strconv.FormatInt(id, 10)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *MySQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
