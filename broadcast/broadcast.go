// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/logger"
	"github.com/wfunc/durak/network"
	"github.com/wfunc/durak/room"
	"github.com/wfunc/durak/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToAll(msgID uint16, data []byte) error
	BroadcastToAddrs(addrs []string, msgID uint16, data []byte) error
}

// Cards 提供牌面：公开的牌和只有持有者可见的牌
type Cards interface {
	Revealed(handle int) (map[int]string, error)
	Owned(handle int, addr string) (map[int]string, error)
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
	decks          func(roomID string) Cards
}

// NewRoomBroadcaster creates a broadcaster. decks returns the card source of
// a room.
func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager, decks func(roomID string) Cards) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
		decks:          decks,
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	room, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	// Get a thread-safe copy of the sessions
	for _, s := range room.GetSessions() {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Debugw("send failed", "room", roomID, "addr", s.Addr, "error", err)
		}
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	for _, s := range b.sessionManager.All() {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Debugw("send failed", "addr", s.Addr, "error", err)
		}
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToAddrs(addrs []string, msgID uint16, data []byte) error {
	for _, addr := range addrs {
		for _, s := range b.sessionManager.GetByAddr(addr) {
			if err := s.Send(msgID, data); err != nil {
				logger.Log.Debugw("send failed", "addr", addr, "error", err)
			}
		}
	}
	return nil
}

// Notify 实现 room.Notifier：每个连接收到自己的视图，手牌只对本人可见
func (b *RoomBroadcaster) Notify(u room.Update) {
	r, exists := b.roomManager.GetRoom(u.RoomID)
	if !exists {
		return
	}

	cards := b.decks(u.RoomID)
	for _, s := range r.GetSessions() {
		view := View(u, s.Addr, Hand(cards, u.Session, s.Addr))
		if err := network.SendJSON(s.Conn, network.MsgTypeRoomState, view); err != nil {
			logger.Log.Debugw("send view failed", "room", u.RoomID, "addr", s.Addr, "error", err)
		}
	}

	if len(u.Effects.Notices) > 0 {
		b.sendJSON(u.RoomID, network.MsgTypeNotice, network.NoticeMessage{Notices: u.Effects.Notices})
	}
	if u.Effects.ResetTimer > 0 {
		b.sendJSON(u.RoomID, network.MsgTypeGameEnd, network.GameEndMessage{
			Ranking: u.Session.RankOrder(),
			Settles: u.Effects.Settles,
		})
	}
}

func (b *RoomBroadcaster) sendJSON(roomID string, msgID uint16, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorw("marshal failed", "room", roomID, "msg", msgID, "error", err)
		return
	}
	_ = b.BroadcastToRoom(roomID, msgID, data)
}

// View builds the table state addr is allowed to see.
func View(u room.Update, addr string, hand []durak.Card) network.TableView {
	s := u.Session
	view := network.TableView{
		RoomID:    u.RoomID,
		Stage:     s.Stage,
		Trump:     s.Trump,
		Discarded: len(s.Discarded),
		Attacks:   s.Attacks,
		Awaiting:  s.Awaiting,
		Deadline:  s.Deadline,
		Joinable:  u.Joinable,
		Hand:      hand,
	}
	if s.Stage != durak.StageWaiting && s.Stage != durak.StageShuffling {
		view.DeckLeft = max(s.Rules.TrumpSlot()-s.DeckOffset, 0)
		if s.Trump != nil {
			// 最后一张底牌就是亮出的王牌
			view.DeckLeft++
		}
	}
	for _, p := range s.Players {
		view.Seats = append(view.Seats, network.SeatView{
			Addr:     p.Addr,
			Position: p.Position,
			Role:     p.Role,
			Cards:    len(p.Slots),
			Rank:     p.Rank,
		})
	}
	return view
}

// Hand returns the cards addr holds with their faces: public faces for cards
// picked up from the table, private faces for dealt ones.
func Hand(cards Cards, s *durak.Session, addr string) []durak.Card {
	p, ok := s.Player(addr)
	if !ok || len(p.Slots) == 0 {
		return nil
	}
	known, err := cards.Revealed(s.RandomID)
	if err != nil {
		logger.Log.Warnw("hand lookup failed", "addr", addr, "error", err)
		return nil
	}
	owned, err := cards.Owned(s.RandomID, addr)
	if err != nil {
		logger.Log.Warnw("hand lookup failed", "addr", addr, "error", err)
		return nil
	}
	for slot, v := range owned {
		known[slot] = v
	}

	hand := make([]durak.Card, 0, len(p.Slots))
	for _, slot := range p.Slots {
		hand = append(hand, durak.Card{Slot: slot, Value: known[slot]})
	}
	sort.Slice(hand, func(i, j int) bool { return hand[i].Slot < hand[j].Slot })
	return hand
}
