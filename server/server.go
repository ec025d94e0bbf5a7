package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/wfunc/cardserver/broadcast"
	"github.com/wfunc/cardserver/config"
	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/monitor"
	"github.com/wfunc/cardserver/room"
	cardserver_rpc "github.com/wfunc/cardserver/rpc"
	"github.com/wfunc/cardserver/session"
	"github.com/wfunc/cardserver/timer"
)

// Options are the collaborators built by main.
type Options struct {
	Config   *config.Config
	Deck     room.Deck
	Recorder room.GameRecorder
	History  cardserver_rpc.GameHistory
	Monitor  *monitor.Monitor
	Version  string
}

type GameServer struct {
	cfg            *config.Config
	version        string
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.RoomBroadcaster
	monitor        *monitor.Monitor
	timers         *timer.TimerManager
	router         *httprouter.Router
	httpServer     *http.Server
	rpcServer      *cardserver_rpc.Server
	healthServer   *cardserver_rpc.HealthServer
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(opts Options) (*GameServer, error) {
	cfg := opts.Config
	s := &GameServer{
		cfg:            cfg,
		version:        opts.Version,
		sessionManager: session.NewManager(),
		monitor:        opts.Monitor,
		timers:         timer.NewTimerManager(50 * time.Millisecond),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewRoomBroadcaster(s.sessionManager)

	s.roomManager = room.NewManager(room.Options{
		Settings: room.Settings{
			WinScore:          cfg.Game.WinScore,
			HandSize:          cfg.Game.HandSize,
			JudgeRestartDelay: cfg.Game.JudgeRestartDelay,
			EmptyRoomGrace:    cfg.Game.EmptyRoomGrace,
		},
		MaxRooms: cfg.Game.MaxRooms,
		Argon2: &argon2id.Params{
			Memory:      cfg.Security.Argon2.Memory,
			Iterations:  cfg.Security.Argon2.Iterations,
			Parallelism: cfg.Security.Argon2.Parallelism,
			SaltLength:  16,
			KeyLength:   32,
		},
		Deck:        opts.Deck,
		Broadcaster: s.broadcaster,
		Recorder:    opts.Recorder,
		Scheduler:   s.timers,
		Monitor:     s.monitor,
	})

	// 初始化RPC服务器
	if cfg.Server.RPCAddress != "" && opts.History != nil {
		rpcServer, err := cardserver_rpc.NewServer(cfg.Server.RPCAddress, cardserver_rpc.NewAdmin(s.roomManager, opts.History))
		if err != nil {
			s.timers.Stop()
			return nil, fmt.Errorf("rpc server: %w", err)
		}
		s.rpcServer = rpcServer
	}
	if cfg.Server.GRPCAddress != "" {
		healthServer, err := cardserver_rpc.NewHealthServer(cfg.Server.GRPCAddress)
		if err != nil {
			if s.rpcServer != nil {
				s.rpcServer.Stop()
			}
			s.timers.Stop()
			return nil, fmt.Errorf("grpc health server: %w", err)
		}
		s.healthServer = healthServer
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *GameServer) routes() *httprouter.Router {
	router := httprouter.New()
	router.GET("/ws", s.handleWebSocket)
	router.GET("/healthz", s.handleHealth)
	router.GET("/version", s.handleVersion)
	router.GET("/rooms/:code/qr", s.handleQR)
	if s.monitor != nil {
		router.Handler(http.MethodGet, "/metrics", s.monitor.Handler())
	}
	return router
}

// Handler exposes the HTTP routes, mainly for tests.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

func (s *GameServer) RoomManager() *room.Manager {
	return s.roomManager
}

func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	if s.healthServer != nil {
		go s.healthServer.Start()
	}

	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting, closes every live connection and every room.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.healthServer != nil {
			s.healthServer.Stop()
		}
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		err = s.httpServer.Shutdown(ctx)
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		s.roomManager.Close()
		s.timers.Stop()
	})
	return err
}
