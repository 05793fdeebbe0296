package network

import (
	"github.com/wfunc/durak/durak"
)

const (
	MsgTypeHeartbeat    = 1
	MsgTypeError        = 2
	MsgTypeJoinRoom     = 101
	MsgTypeLeaveRoom    = 102
	MsgTypeCreateRoom   = 103
	MsgTypeStartGame    = 104
	MsgTypePlayerAction = 202
	MsgTypeRoomState    = 301
	MsgTypeNotice       = 302
	MsgTypeGameEnd      = 305
)

type CreateRoomRequest struct {
	Players int    `json:"players"`
	Bet     uint64 `json:"bet"`
}

// JoinRoomRequest 中 RoomID 为空时加入任意一个可用房间
type JoinRoomRequest struct {
	RoomID string `json:"room_id"`
}

type RoomReply struct {
	RoomID string `json:"room_id"`
}

type ErrorMessage struct {
	Code   string `json:"code"`
	Class  string `json:"class,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ErrorFrom maps an engine error to its wire form.
func ErrorFrom(err error) ErrorMessage {
	msg := ErrorMessage{Code: durak.CodeOf(err), Detail: err.Error()}
	if class, ok := durak.ClassOf(err); ok {
		msg.Class = class.String()
	}
	return msg
}

type SeatView struct {
	Addr     string     `json:"addr"`
	Position int        `json:"position"`
	Role     durak.Role `json:"role"`
	Cards    int        `json:"cards"`
	Rank     *int       `json:"rank,omitempty"`
}

// TableView 是发给单个玩家的房间状态，Hand 只包含该玩家自己的牌
type TableView struct {
	RoomID    string         `json:"room_id"`
	Stage     durak.Stage    `json:"stage"`
	Trump     *durak.Card    `json:"trump,omitempty"`
	DeckLeft  int            `json:"deck_left"`
	Discarded int            `json:"discarded"`
	Seats     []SeatView     `json:"seats"`
	Attacks   []durak.Attack `json:"attacks"`
	Awaiting  string         `json:"awaiting,omitempty"`
	Deadline  int64          `json:"deadline,omitempty"`
	Joinable  bool           `json:"joinable"`
	Hand      []durak.Card   `json:"hand,omitempty"`
}

type NoticeMessage struct {
	Notices []durak.Notice `json:"notices"`
}

type GameEndMessage struct {
	Ranking []string       `json:"ranking"`
	Settles []durak.Settle `json:"settles"`
}
