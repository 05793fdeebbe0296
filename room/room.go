// room/room.go
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/logger"
	"github.com/wfunc/durak/session"
)

var (
	ErrRoomClosed = errors.New("room closed")
	ErrRoomFull   = errors.New("room full")
)

type request struct {
	ctx  context.Context
	fn   func(ctx context.Context, t *Table) error
	done chan error
}

// Room 是游戏房间的核心结构。所有对牌桌的操作都在房间自己的 goroutine 中串行执行
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Players   map[string]*session.Session // addr -> session

	table       *Table
	inbox       chan request
	playerMutex sync.RWMutex
	closeChan   chan struct{}
	closeOnce   sync.Once
}

func newRoom(id, name string) *Room {
	return &Room{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now(),
		Players:   make(map[string]*session.Session),
		inbox:     make(chan request, 64),
		closeChan: make(chan struct{}),
	}
}

// NewRoom 创建一个新房间，房间内的计时器回调会投递回房间的队列
func NewRoom(id, name string, rules durak.Rules, rnd Randomness, opts ...TableOption) (*Room, error) {
	r := newRoom(id, name)
	table, err := NewTable(id, rules, rnd, append(opts, WithPoster(r.Post))...)
	if err != nil {
		return nil, err
	}
	r.table = table
	go r.loop()
	return r, nil
}

// RestoreRoom 从快照恢复房间
func RestoreRoom(id, name string, snapshot []byte, rnd Randomness, opts ...TableOption) (*Room, error) {
	r := newRoom(id, name)
	table, err := RestoreTable(id, snapshot, rnd, append(opts, WithPoster(r.Post))...)
	if err != nil {
		return nil, err
	}
	r.table = table
	go r.loop()
	return r, nil
}

// loop 是房间的主循环
func (r *Room) loop() {
	for {
		select {
		case req := <-r.inbox:
			err := req.fn(req.ctx, r.table)
			if req.done != nil {
				req.done <- err
			}
		case <-r.closeChan:
			r.table.Close()
			return
		}
	}
}

// Do runs fn on the room goroutine and waits for its result.
func (r *Room) Do(ctx context.Context, fn func(ctx context.Context, t *Table) error) error {
	select {
	case <-r.closeChan:
		return ErrRoomClosed
	default:
	}

	done := make(chan error, 1)
	select {
	case r.inbox <- request{ctx: ctx, fn: fn, done: done}:
	case <-r.closeChan:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-r.closeChan:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit hands ev to the table and waits for the outcome.
func (r *Room) Submit(ctx context.Context, ev durak.Event) error {
	return r.Do(ctx, func(ctx context.Context, t *Table) error {
		return t.Apply(ctx, ev)
	})
}

// Post queues ev without waiting. Timer callbacks use it.
func (r *Room) Post(ev durak.Event) {
	req := request{
		ctx: context.Background(),
		fn: func(ctx context.Context, t *Table) error {
			return t.Apply(ctx, ev)
		},
	}
	select {
	case r.inbox <- req:
	case <-r.closeChan:
		logger.Log.Debugw("event dropped on closed room", "room", r.ID, "event", durak.EventName(ev))
	}
}

// Join 添加玩家并为其分配座位
func (r *Room) Join(ctx context.Context, s *session.Session) error {
	if !r.AddPlayer(s) {
		return ErrRoomFull
	}
	err := r.Do(ctx, func(ctx context.Context, t *Table) error {
		return t.Seat(ctx, s.Addr)
	})
	if err != nil {
		r.RemovePlayer(s.Addr)
		return err
	}
	return nil
}

// Leave 移除玩家。游戏开始后引擎拒绝离开，玩家会因超时自动出牌
func (r *Room) Leave(ctx context.Context, addr string) error {
	r.RemovePlayer(addr)
	return r.Submit(ctx, durak.PlayerLeft{Addr: addr})
}

// AddPlayer 添加一个玩家到房间
func (r *Room) AddPlayer(s *session.Session) bool {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	if _, exists := r.Players[s.Addr]; exists {
		return false
	}
	if len(r.Players) >= r.table.Rules().MaxSeats {
		return false
	}

	r.Players[s.Addr] = s
	s.SetRoom(r.ID)
	return true
}

// RemovePlayer 从房间移除一个玩家
func (r *Room) RemovePlayer(addr string) {
	r.playerMutex.Lock()
	defer r.playerMutex.Unlock()

	if player, exists := r.Players[addr]; exists {
		player.SetRoom("")
		delete(r.Players, addr)
	}
}

// GetPlayer 获取单个玩家
func (r *Room) GetPlayer(addr string) (*session.Session, bool) {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	player, exists := r.Players[addr]
	return player, exists
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.Players))
	for _, s := range r.Players {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *Room) Table() *Table {
	return r.table
}

// Close 关闭房间，停止主循环
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.closeChan) })
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// AddRoom 把房间加入管理器
func (m *Manager) AddRoom(room *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rooms[room.ID] = room
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, exists := m.rooms[id]; exists {
		room.Close()
		delete(m.rooms, id)
	}
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// FindAvailableRoom 查找一个可用的房间
func (m *Manager) FindAvailableRoom() *Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, room := range m.rooms {
		if room.table.Open() {
			return room
		}
	}
	return nil
}

// All 返回当前所有房间
func (m *Manager) All() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// CloseAll 关闭所有房间
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for id, room := range m.rooms {
		room.Close()
		delete(m.rooms, id)
	}
}
