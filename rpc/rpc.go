package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/models"
	"github.com/wfunc/cardserver/room"
)

// Server manages the admin RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers admin as "Admin".
func NewServer(addr string, admin *Admin) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newServer(listener, admin)
}

func newServer(listener net.Listener, admin *Admin) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Admin", admin); err != nil {
		listener.Close()
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
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

// RoomLister is the part of the room registry the admin service reads.
type RoomLister interface {
	Summaries() []room.Summary
}

// GameHistory is the part of the history service the admin service reads.
type GameHistory interface {
	Recent(ctx context.Context, limit int) ([]models.GameRecord, error)
}

// Admin exposes read-only operator methods over net/rpc.
type Admin struct {
	rooms   RoomLister
	history GameHistory
	timeout time.Duration
}

func NewAdmin(rooms RoomLister, history GameHistory) *Admin {
	return &Admin{rooms: rooms, history: history, timeout: 5 * time.Second}
}

type ListRoomsArgs struct{}

type RoomInfo struct {
	Code      string
	Phase     string
	Players   int
	Connected int
	Rounds    int
	CreatedAt time.Time
}

type ListRoomsReply struct {
	Rooms []RoomInfo
}

// ListRooms must follow the net/rpc signature: exported method, exported
// arguments, second argument is a pointer, return type is error.
func (a *Admin) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, s := range a.rooms.Summaries() {
		reply.Rooms = append(reply.Rooms, RoomInfo{
			Code:      s.Code,
			Phase:     string(s.Phase),
			Players:   s.Players,
			Connected: s.Connected,
			Rounds:    s.Rounds,
			CreatedAt: s.CreatedAt,
		})
	}
	return nil
}

type RecentGamesArgs struct {
	Limit int
}

type RecentGamesReply struct {
	Games []models.GameRecord
}

func (a *Admin) RecentGames(args *RecentGamesArgs, reply *RecentGamesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	games, err := a.history.Recent(ctx, args.Limit)
	if err != nil {
		return err
	}
	reply.Games = games
	return nil
}
