package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/durak/logger"
	"github.com/wfunc/durak/models"
	"github.com/wfunc/durak/room"
)

var ErrRoomNotFound = errors.New("room not found")

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
		rpc:      rpc.NewServer(),
	}, nil
}

// Register exposes the exported methods of svc.
func (s *Server) Register(svc interface{}) error {
	return s.rpc.Register(svc)
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

type StatsSource interface {
	PlayerStats(ctx context.Context, addr string) (*models.PlayerStats, error)
}

type Rooms interface {
	GetRoom(id string) (*room.Room, bool)
}

// GameService is the struct that exposes RPC methods.
type GameService struct {
	stats StatsSource
	rooms Rooms
}

// NewGameService creates a new GameService.
func NewGameService(stats StatsSource, rooms Rooms) *GameService {
	return &GameService{stats: stats, rooms: rooms}
}

type GetPlayerArgs struct {
	Addr string
}

type GetPlayerReply struct {
	Stats models.PlayerStats
}

// GetPlayerStats must follow the net/rpc signature: exported method, exported
// arguments, second argument is a pointer, return type is error.
func (gs *GameService) GetPlayerStats(args *GetPlayerArgs, reply *GetPlayerReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := gs.stats.PlayerStats(ctx, args.Addr)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}

type GetRoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	Stage    string
	Snapshot []byte
}

// GetRoomSnapshot returns the current session encoding of a room.
func (gs *GameService) GetRoomSnapshot(args *GetRoomArgs, reply *GetRoomReply) error {
	r, ok := gs.rooms.GetRoom(args.RoomID)
	if !ok {
		return ErrRoomNotFound
	}
	data, err := r.Table().Snapshot()
	if err != nil {
		return err
	}
	reply.Stage = r.Table().Session().Stage.String()
	reply.Snapshot = data
	return nil
}
