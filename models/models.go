// models/models.go
package models

import (
	"time"
)

// StartingBalance 新玩家的初始余额
const StartingBalance int64 = 1000

// Transfer 一次结算中单个玩家的余额变动
type Transfer struct {
	Addr  string `json:"addr"`
	Delta int64  `json:"delta"`
}

// Settlement 一局游戏的结算记录
type Settlement struct {
	RoomID    string     `json:"room_id"`
	Handle    int        `json:"handle"`
	Winner    string     `json:"winner"`
	Loser     string     `json:"loser"`
	Amount    uint64     `json:"amount"`
	Transfers []Transfer `json:"transfers"`
	CreatedAt time.Time  `json:"created_at"`
}

// PlayerStats 玩家统计信息
type PlayerStats struct {
	Addr       string `json:"addr"`
	TotalGames int    `json:"total_games"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Balance    int64  `json:"balance"`
}

// Apply 将一笔 Transfer 计入统计
func (s *PlayerStats) Apply(settlement Settlement, t Transfer) {
	s.TotalGames++
	s.Balance += t.Delta
	switch t.Addr {
	case settlement.Winner:
		s.Wins++
	case settlement.Loser:
		s.Losses++
	}
}

// Checkpoint 房间快照
type Checkpoint struct {
	RoomID    string    `json:"room_id"`
	Stage     string    `json:"stage"`
	Snapshot  []byte    `json:"snapshot"`
	UpdatedAt time.Time `json:"updated_at"`
}
