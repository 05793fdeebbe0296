// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/durak/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	return NewGorm(postgres.Open(dsn))
}

// NewGorm 使用任意 dialector 打开数据库并迁移表结构
func NewGorm(dialector gorm.Dialector) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormPlayer{},
		&models.GormGameRecord{},
		&models.GormCheckpoint{},
	)
}

func (p *GormPostgreSQL) SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	row := models.GormCheckpoint{
		RoomID:   cp.RoomID,
		Stage:    cp.Stage,
		Snapshot: cp.Snapshot,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stage", "snapshot", "updated_at"}),
	}).Create(&row).Error
}

func (p *GormPostgreSQL) LoadCheckpoint(ctx context.Context, roomID string) (*models.Checkpoint, error) {
	var row models.GormCheckpoint
	if err := p.db.WithContext(ctx).Where("room_id = ?", roomID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &models.Checkpoint{
		RoomID:    row.RoomID,
		Stage:     row.Stage,
		Snapshot:  row.Snapshot,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (p *GormPostgreSQL) ListCheckpoints(ctx context.Context) ([]string, error) {
	var ids []string
	err := p.db.WithContext(ctx).Model(&models.GormCheckpoint{}).Order("room_id").Pluck("room_id", &ids).Error
	return ids, err
}

// ApplySettlement 写入游戏记录，并逐个玩家累加余额和胜负
func (p *GormPostgreSQL) ApplySettlement(ctx context.Context, s models.Settlement) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.GormGameRecord{
			RoomID:    s.RoomID,
			Handle:    s.Handle,
			Winner:    s.Winner,
			Loser:     s.Loser,
			Amount:    s.Amount,
			Transfers: s.Transfers,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("create game record: %w", err)
		}

		for _, t := range s.Transfers {
			var player models.GormPlayer
			if err := tx.Where(models.GormPlayer{Addr: t.Addr}).
				Attrs(models.GormPlayer{Balance: models.StartingBalance}).
				FirstOrCreate(&player).Error; err != nil {
				return fmt.Errorf("load player %s: %w", t.Addr, err)
			}

			updates := map[string]interface{}{
				"balance":     gorm.Expr("balance + ?", t.Delta),
				"total_games": gorm.Expr("total_games + 1"),
			}
			switch t.Addr {
			case s.Winner:
				updates["wins"] = gorm.Expr("wins + 1")
			case s.Loser:
				updates["losses"] = gorm.Expr("losses + 1")
			}
			if err := tx.Model(&player).Updates(updates).Error; err != nil {
				return fmt.Errorf("update player %s: %w", t.Addr, err)
			}
		}
		return nil
	})
}

func (p *GormPostgreSQL) GetPlayerStats(ctx context.Context, addr string) (*models.PlayerStats, error) {
	var player models.GormPlayer
	if err := p.db.WithContext(ctx).Where("addr = ?", addr).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return player.Stats(), nil
}

func (p *GormPostgreSQL) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
