// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormPlayer 玩家模型，按地址唯一
type GormPlayer struct {
	gorm.Model
	Addr       string `gorm:"uniqueIndex;not null"`
	Balance    int64  `gorm:"default:1000"`
	TotalGames int    `gorm:"default:0"`
	Wins       int    `gorm:"default:0"`
	Losses     int    `gorm:"default:0"`
}

func (p GormPlayer) Stats() *PlayerStats {
	return &PlayerStats{
		Addr:       p.Addr,
		TotalGames: p.TotalGames,
		Wins:       p.Wins,
		Losses:     p.Losses,
		Balance:    p.Balance,
	}
}

// GormGameRecord 游戏记录模型
type GormGameRecord struct {
	gorm.Model
	RoomID    string     `gorm:"index;not null"`
	Handle    int        `gorm:"not null"`
	Winner    string     `gorm:"index"`
	Loser     string     `gorm:"index"`
	Amount    uint64     `gorm:"default:0"`
	Transfers []Transfer `gorm:"serializer:json;type:jsonb"`
}

// GormCheckpoint 房间快照模型，每个房间一行
type GormCheckpoint struct {
	gorm.Model
	RoomID   string `gorm:"uniqueIndex;not null"`
	Stage    string `gorm:"not null"`
	Snapshot []byte `gorm:"not null"`
}
