// persistence/sql_store.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"
	// SQLite 驱动，本地开发和测试使用
	_ "modernc.org/sqlite"

	"github.com/wfunc/durak/models"
)

const queryTimeout = 5 * time.Second

type dialect struct {
	serial string
	blob   string
	json   string
}

var dialects = map[string]dialect{
	"postgres": {serial: "SERIAL PRIMARY KEY", blob: "BYTEA", json: "JSONB"},
	"sqlite":   {serial: "INTEGER PRIMARY KEY AUTOINCREMENT", blob: "BLOB", json: "TEXT"},
}

// SQLStore 基于 database/sql 的实现，支持 postgres 和 sqlite
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore 打开连接并初始化表结构
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tables: %w", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB, d dialect) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
            id ` + d.serial + `,
            addr VARCHAR(255) UNIQUE NOT NULL,
            balance BIGINT NOT NULL,
            total_games INTEGER NOT NULL DEFAULT 0,
            wins INTEGER NOT NULL DEFAULT 0,
            losses INTEGER NOT NULL DEFAULT 0,
            updated_at BIGINT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS game_records (
            id ` + d.serial + `,
            room_id VARCHAR(255) NOT NULL,
            handle INTEGER NOT NULL,
            winner VARCHAR(255) NOT NULL,
            loser VARCHAR(255) NOT NULL,
            amount BIGINT NOT NULL,
            transfers ` + d.json + ` NOT NULL,
            created_at BIGINT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
            id ` + d.serial + `,
            room_id VARCHAR(255) UNIQUE NOT NULL,
            stage VARCHAR(50) NOT NULL,
            snapshot ` + d.blob + ` NOT NULL,
            updated_at BIGINT NOT NULL
        )`,
		// 创建索引以提高查询性能
		`CREATE INDEX IF NOT EXISTS idx_game_records_room_id ON game_records(room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_game_records_created_at ON game_records(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind 把 $n 占位符改写为 sqlite 的 ?n
func (p *SQLStore) rebind(query string) string {
	if p.driver == "sqlite" {
		return strings.ReplaceAll(query, "$", "?")
	}
	return query
}

func (p *SQLStore) SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 使用 UPSERT 操作
	query := `
        INSERT INTO checkpoints (room_id, stage, snapshot, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (room_id)
        DO UPDATE SET stage = excluded.stage, snapshot = excluded.snapshot, updated_at = excluded.updated_at
    `
	_, err := p.db.ExecContext(ctx, p.rebind(query), cp.RoomID, cp.Stage, cp.Snapshot, time.Now().UnixMilli())
	return err
}

func (p *SQLStore) LoadCheckpoint(ctx context.Context, roomID string) (*models.Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cp := models.Checkpoint{RoomID: roomID}
	var updated int64
	query := `SELECT stage, snapshot, updated_at FROM checkpoints WHERE room_id = $1`
	err := p.db.QueryRowContext(ctx, p.rebind(query), roomID).Scan(&cp.Stage, &cp.Snapshot, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	cp.UpdatedAt = time.UnixMilli(updated)
	return &cp, nil
}

func (p *SQLStore) ListCheckpoints(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT room_id FROM checkpoints ORDER BY room_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *SQLStore) ApplySettlement(ctx context.Context, s models.Settlement) error {
	transfers, err := json.Marshal(s.Transfers)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, p.rebind(`
        INSERT INTO game_records (room_id, handle, winner, loser, amount, transfers, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `), s.RoomID, s.Handle, s.Winner, s.Loser, int64(s.Amount), string(transfers), now)
	if err != nil {
		return fmt.Errorf("insert game record: %w", err)
	}

	upsert := `
        INSERT INTO players (addr, balance, total_games, wins, losses, updated_at)
        VALUES ($1, $2, 1, $3, $4, $5)
        ON CONFLICT (addr)
        DO UPDATE SET balance = players.balance + $6,
                      total_games = players.total_games + 1,
                      wins = players.wins + $3,
                      losses = players.losses + $4,
                      updated_at = $5
    `
	for _, t := range s.Transfers {
		var win, loss int
		switch t.Addr {
		case s.Winner:
			win = 1
		case s.Loser:
			loss = 1
		}
		if _, err := tx.ExecContext(ctx, p.rebind(upsert), t.Addr, models.StartingBalance+t.Delta, win, loss, now, t.Delta); err != nil {
			return fmt.Errorf("update player %s: %w", t.Addr, err)
		}
	}
	return tx.Commit()
}

func (p *SQLStore) GetPlayerStats(ctx context.Context, addr string) (*models.PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stats := models.PlayerStats{Addr: addr}
	query := `SELECT total_games, wins, losses, balance FROM players WHERE addr = $1`
	err := p.db.QueryRowContext(ctx, p.rebind(query), addr).Scan(&stats.TotalGames, &stats.Wins, &stats.Losses, &stats.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &stats, nil
}

func (p *SQLStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (p *SQLStore) Close() error {
	return p.db.Close()
}
