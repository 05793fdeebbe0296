package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/durak/broadcast"
	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/logger"
	"github.com/wfunc/durak/models"
	"github.com/wfunc/durak/monitor"
	"github.com/wfunc/durak/network"
	"github.com/wfunc/durak/persistence"
	"github.com/wfunc/durak/randomness"
	"github.com/wfunc/durak/room"
	durakrpc "github.com/wfunc/durak/rpc"
	"github.com/wfunc/durak/services"
	"github.com/wfunc/durak/session"
	"github.com/wfunc/durak/timer"
)

var (
	ErrNotInRoom     = errors.New("not in a room")
	ErrNoRoom        = errors.New("no room available")
	ErrBadRequest    = errors.New("bad request")
	ErrAlreadyInRoom = errors.New("already in a room")
)

const (
	requestTimeout    = 5 * time.Second
	heartbeatInterval = 60 * time.Second
	sweepInterval     = 30 * time.Second
)

type Options struct {
	Addr     string
	RPCAddr  string
	GRPCAddr string
	Secret   []byte
	// Rules are the defaults for rooms created without overrides.
	Rules    durak.Rules
	Database persistence.Database
	Monitor  *monitor.Monitor
	// Seed makes shuffles reproducible. Leave nil in production.
	Seed     []byte
}

type GameServer struct {
	addr           string
	secret         []byte
	rules          durak.Rules
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	ledger         *services.LedgerService
	broadcaster    *broadcast.RoomBroadcaster
	decks          *randomness.Pool
	timers         *timer.TimerManager
	sweepTimer     int64
	db             persistence.Database
	monitor        *monitor.Monitor
	rpcServer      *durakrpc.Server
	healthServer   *durakrpc.HealthServer
	httpServer     *http.Server
	mutex          sync.Mutex
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(opts Options) (*GameServer, error) {
	if err := opts.Rules.Validate(); err != nil {
		return nil, err
	}
	if opts.Monitor == nil {
		opts.Monitor = monitor.NewMonitor("durak")
	}
	s := &GameServer{
		addr:           opts.Addr,
		secret:         opts.Secret,
		rules:          opts.Rules,
		roomManager:    room.NewRoomManager(),
		sessionManager: session.NewManager(),
		ledger:         services.NewLedgerService(opts.Database),
		decks:          randomness.NewPool(opts.Seed),
		timers:         timer.NewTimerManager(),
		db:             opts.Database,
		monitor:        opts.Monitor,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager, func(roomID string) broadcast.Cards {
		return s.decks.For(roomID)
	})

	if opts.RPCAddr != "" {
		rpcServer, err := durakrpc.NewServer(opts.RPCAddr)
		if err != nil {
			return nil, err
		}
		// 注册RPC服务
		if err := rpcServer.Register(durakrpc.NewGameService(s.ledger, s.roomManager)); err != nil {
			rpcServer.Stop()
			return nil, err
		}
		s.rpcServer = rpcServer
	}
	if opts.GRPCAddr != "" {
		health, err := durakrpc.NewHealthServer(opts.GRPCAddr, opts.Database)
		if err != nil {
			if s.rpcServer != nil {
				s.rpcServer.Stop()
			}
			return nil, err
		}
		s.healthServer = health
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: opts.Addr, Handler: mux}
	return s, nil
}

// Handler exposes the websocket endpoint for embedding and tests.
func (s *GameServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

func (s *GameServer) Start() error {
	s.sweepTimer = s.timers.AddTimer(sweepInterval, sweepInterval, s.sweep)
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	if s.healthServer != nil {
		go s.healthServer.Start()
	}
	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		err = s.httpServer.Shutdown(ctx)
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		if s.healthServer != nil {
			s.healthServer.Stop()
		}
		s.timers.RemoveTimer(s.sweepTimer)
		s.roomManager.CloseAll()
		s.timers.Stop()
	})
	return err
}

// Restore reopens every checkpointed room.
func (s *GameServer) Restore(ctx context.Context) error {
	ids, err := s.db.ListCheckpoints(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		cp, err := s.db.LoadCheckpoint(ctx, id)
		if err != nil {
			return err
		}
		r, err := room.RestoreRoom(cp.RoomID, "Restored", cp.Snapshot, s.decks.For(cp.RoomID), s.tableOptions()...)
		if err != nil {
			logger.Log.Errorw("restore room failed", "room", cp.RoomID, "stage", cp.Stage, "error", err)
			continue
		}
		s.roomManager.AddRoom(r)
		logger.Log.Infow("room restored", "room", cp.RoomID, "stage", cp.Stage)
	}
	s.monitor.SetActiveRooms(s.roomManager.Count())
	return nil
}

func (s *GameServer) tableOptions() []room.TableOption {
	return []room.TableOption{
		room.WithScheduler(s.timers),
		room.WithSettler(s.ledger),
		room.WithStore(s.db),
		room.WithNotifier(s.broadcaster),
		room.WithRecorder(s.monitor),
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	addr, err := ParseToken(s.secret, tokenFrom(r))
	if err != nil {
		logger.Log.Debugw("rejected connection", "remote", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(addr, conn)
}

func (s *GameServer) handleConnection(addr string, conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(heartbeatInterval)
	sess := session.NewSession(uuid.New().String(), addr, wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infow("new connection", "remote", wsConn.RemoteAddr(), "session", sess.GetID(), "addr", addr)

	defer func() {
		logger.Log.Infow("connection closed", "remote", wsConn.RemoteAddr(), "session", sess.GetID(), "addr", addr)
		s.leaveRoom(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.monitor.IncMessagesReceived()
			if err := s.handlePacket(sess, packet); err != nil {
				s.replyError(sess, err)
			}
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) error {
	sess.Touch()
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		return sess.Send(network.MsgTypeHeartbeat, nil)
	case network.MsgTypeCreateRoom:
		return s.handleCreateRoom(sess, packet)
	case network.MsgTypeJoinRoom:
		return s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		return s.handleLeaveRoom(sess)
	case network.MsgTypeStartGame:
		return s.submit(sess, durak.StartRequested{})
	case network.MsgTypePlayerAction:
		return s.submit(sess, durak.PlayerAction{Addr: sess.Addr, Payload: packet.Data})
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		return nil
	}
}

func (s *GameServer) replyError(sess *session.Session, err error) {
	logger.Log.Debugw("request failed", "session", sess.GetID(), "addr", sess.Addr, "error", err)
	if sendErr := network.SendJSON(sess.Conn, network.MsgTypeError, network.ErrorFrom(err)); sendErr != nil {
		logger.Log.Debugw("send error failed", "session", sess.GetID(), "error", sendErr)
	}
}

// CreateRoom opens a room with rules derived from the server defaults.
func (s *GameServer) CreateRoom(req network.CreateRoomRequest) (*room.Room, error) {
	rules := s.rules
	if req.Players > 0 && req.Players != rules.NumPlayers {
		rules = durak.DefaultRules(req.Players)
		rules.BetAmount = s.rules.BetAmount
	}
	if req.Bet > 0 {
		rules.BetAmount = req.Bet
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	roomID := uuid.New().String()
	r, err := room.NewRoom(roomID, "New Room", rules, s.decks.For(roomID), s.tableOptions()...)
	if err != nil {
		s.decks.Release(roomID)
		return nil, err
	}
	s.roomManager.AddRoom(r)
	s.monitor.SetActiveRooms(s.roomManager.Count())
	return r, nil
}

func (s *GameServer) handleCreateRoom(sess *session.Session, packet *network.Packet) error {
	var req network.CreateRoomRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			return ErrBadRequest
		}
	}
	if sess.Room() != "" {
		return ErrAlreadyInRoom
	}
	r, err := s.CreateRoom(req)
	if err != nil {
		return err
	}
	logger.Log.Infow("room created", "room", r.ID, "addr", sess.Addr, "players", r.Table().Rules().NumPlayers)

	if err := s.join(sess, r); err != nil {
		return err
	}
	return network.SendJSON(sess.Conn, network.MsgTypeCreateRoom, network.RoomReply{RoomID: r.ID})
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) error {
	var req network.JoinRoomRequest
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			return ErrBadRequest
		}
	}
	if current := sess.Room(); current != "" {
		if req.RoomID != "" && req.RoomID != current {
			return ErrAlreadyInRoom
		}
		return s.reseat(sess, current)
	}

	var r *room.Room
	if req.RoomID != "" {
		found, exists := s.roomManager.GetRoom(req.RoomID)
		if !exists {
			return durakrpc.ErrRoomNotFound
		}
		r = found
	} else if r = s.roomManager.FindAvailableRoom(); r == nil {
		return ErrNoRoom
	}

	if err := s.join(sess, r); err != nil {
		return err
	}
	logger.Log.Infow("joined room", "room", r.ID, "addr", sess.Addr)
	return network.SendJSON(sess.Conn, network.MsgTypeJoinRoom, network.RoomReply{RoomID: r.ID})
}

// join seats sess, or reattaches it when its address already holds a seat.
func (s *GameServer) join(sess *session.Session, r *room.Room) error {
	if _, seated := r.Table().Session().Player(sess.Addr); seated {
		if !r.AddPlayer(sess) {
			return room.ErrRoomFull
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return r.Join(ctx, sess)
}

// reseat takes a seat again in the room sess is watching, after the last game
// there ended.
func (s *GameServer) reseat(sess *session.Session, roomID string) error {
	r, exists := s.roomManager.GetRoom(roomID)
	if !exists {
		sess.SetRoom("")
		return durakrpc.ErrRoomNotFound
	}
	if _, seated := r.Table().Session().Player(sess.Addr); seated {
		return ErrAlreadyInRoom
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	err := r.Do(ctx, func(ctx context.Context, t *room.Table) error {
		return t.Seat(ctx, sess.Addr)
	})
	if err != nil {
		return err
	}
	return network.SendJSON(sess.Conn, network.MsgTypeJoinRoom, network.RoomReply{RoomID: r.ID})
}

func (s *GameServer) handleLeaveRoom(sess *session.Session) error {
	if sess.Room() == "" {
		return ErrNotInRoom
	}
	roomID := sess.Room()
	if err := s.leave(sess); err != nil {
		return err
	}
	return network.SendJSON(sess.Conn, network.MsgTypeLeaveRoom, network.RoomReply{RoomID: roomID})
}

// leave takes sess out of its room. A game in progress keeps the seat and
// lets the timeouts play for the absent player.
func (s *GameServer) leave(sess *session.Session) error {
	r, exists := s.roomManager.GetRoom(sess.Room())
	if !exists {
		sess.SetRoom("")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	err := r.Leave(ctx, sess.Addr)
	if len(r.Table().Session().Players) == 0 && len(r.GetSessions()) == 0 {
		s.removeRoom(r.ID)
	}
	return err
}

func (s *GameServer) leaveRoom(sess *session.Session) {
	if sess.Room() == "" {
		return
	}
	if err := s.leave(sess); err != nil {
		logger.Log.Debugw("seat kept after disconnect", "addr", sess.Addr, "error", err)
	}
}

// sweep drops rooms nobody sits in or watches. A reset clears the seats, so
// a finished room whose players all disconnected ends up here.
func (s *GameServer) sweep() {
	for _, r := range s.roomManager.All() {
		if len(r.Table().Session().Players) == 0 && len(r.GetSessions()) == 0 {
			s.removeRoom(r.ID)
		}
	}
	s.monitor.SetActiveRooms(s.roomManager.Count())
}

func (s *GameServer) removeRoom(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.roomManager.RemoveRoom(id)
	s.decks.Release(id)
	s.monitor.SetActiveRooms(s.roomManager.Count())
	logger.Log.Infow("room removed", "room", id)
}

func (s *GameServer) submit(sess *session.Session, ev durak.Event) error {
	if sess.Room() == "" {
		return ErrNotInRoom
	}
	r, exists := s.roomManager.GetRoom(sess.Room())
	if !exists {
		return durakrpc.ErrRoomNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return r.Submit(ctx, ev)
}

// PlayerStats is a convenience for the admin surfaces.
func (s *GameServer) PlayerStats(ctx context.Context, addr string) (*models.PlayerStats, error) {
	return s.ledger.PlayerStats(ctx, addr)
}
