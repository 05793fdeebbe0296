// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/durak/models"
)

// Database 数据库接口
type Database interface {
	// SaveCheckpoint 覆盖房间的最新快照
	SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error
	LoadCheckpoint(ctx context.Context, roomID string) (*models.Checkpoint, error)
	ListCheckpoints(ctx context.Context) ([]string, error)
	// ApplySettlement 在一个事务中写入游戏记录并更新余额
	ApplySettlement(ctx context.Context, s models.Settlement) error
	GetPlayerStats(ctx context.Context, addr string) (*models.PlayerStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownDriver  = errors.New("unknown database driver")
)

// Open 按驱动名创建数据库：gorm 使用 GORM + PostgreSQL，postgres 和 sqlite 使用 database/sql
func Open(driver, dsn string) (Database, error) {
	switch driver {
	case "gorm":
		return NewGormPostgreSQL(dsn)
	case "postgres", "sqlite":
		return NewSQLStore(driver, dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
