package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/network"
	"github.com/wfunc/cardserver/room"
	"github.com/wfunc/cardserver/session"
)

const qrSize = 320

var (
	errUnknownEvent = errors.New("unknown event")
	errBadPayload   = errors.New("malformed payload")
)

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	heartbeat := s.cfg.Server.Heartbeat
	wsConn := network.NewWSConnection(conn, s.cfg.Server.ReadLimit)
	wsConn.SetHeartbeat(heartbeat)
	sess := session.NewSession("", wsConn, session.Options{
		SendBuffer: s.cfg.Server.SendBuffer,
		PerSecond:  s.cfg.RateLimit.PerSecond,
		Burst:      s.cfg.RateLimit.Burst,
	})
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()
	go sess.WritePump(heartbeat)

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.broadcaster.LeaveAll(sess.GetID())
		s.roomManager.Disconnect(sess.GetID())
		sess.Close()
		s.monitor.DecOnlinePlayers()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		case <-sess.Done():
			return
		default:
		}
		env, err := wsConn.ReadEnvelope()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debugw("read failed", "session", sess.GetID(), "error", err)
			}
			return
		}
		sess.Touch()
		if !sess.Allow() {
			s.monitor.IncRejected("rate_limited")
			logger.Log.Debugw("rate limited", "session", sess.GetID(), "event", env.Event)
			continue
		}
		s.dispatch(sess, env)
	}
}

func (s *GameServer) dispatch(sess *session.Session, env network.Envelope) {
	start := time.Now()
	s.monitor.IncMessagesReceived(env.Event)
	err := s.handleEvent(sess.GetID(), env)
	s.monitor.ObserveMessageLatency(time.Since(start))
	if err == nil {
		return
	}

	reason := rejectReason(err)
	s.monitor.IncRejected(reason)
	logger.Log.Debugw("command rejected", "session", sess.GetID(), "event", env.Event, "reason", reason, "error", err)
	if text := statusFor(env.Event, err); text != "" {
		_ = sess.Send(network.EventStatusMessage, text)
	}
}

func (s *GameServer) handleEvent(connID string, env network.Envelope) error {
	switch env.Event {
	case network.EventCreateRoom:
		var req network.CreateRoomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		_, err := s.roomManager.Create(connID, req.Name, req.Count, req.Password)
		return err
	case network.EventJoinRoom:
		var req network.JoinRoomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return s.roomManager.Join(connID, req.Code, req.Name, req.Password)
	case network.EventRejoinRoom:
		var req network.RejoinRoomRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return s.roomManager.Rejoin(connID, req.Code, req.Name)
	case network.EventStartGame:
		code, err := decodeCode(env.Data)
		if err != nil {
			return err
		}
		return s.roomManager.StartGame(connID, code)
	case network.EventStartRound:
		code, err := decodeCode(env.Data)
		if err != nil {
			return err
		}
		return s.roomManager.StartRound(connID, code)
	case network.EventSubmitCard:
		var req network.SubmitCardRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return s.roomManager.SubmitCard(connID, req.RoomCode, req.Card)
	case network.EventPickWinner:
		var req network.PickWinnerRequest
		if err := decode(env.Data, &req); err != nil {
			return err
		}
		return s.roomManager.PickWinner(connID, req.RoomCode, req.PlayerID)
	case network.EventStopGame:
		code, err := decodeCode(env.Data)
		if err != nil {
			return err
		}
		return s.roomManager.StopGame(connID, code)
	case network.EventCloseRoom:
		code, err := decodeCode(env.Data)
		if err != nil {
			return err
		}
		return s.roomManager.CloseRoom(connID, code)
	default:
		return errUnknownEvent
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(errBadPayload, err)
	}
	return nil
}

// decodeCode accepts a bare room code string or an object carrying code/roomCode.
func decodeCode(data json.RawMessage) (string, error) {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		return code, nil
	}
	var obj struct {
		Code     string `json:"code"`
		RoomCode string `json:"roomCode"`
	}
	if err := decode(data, &obj); err != nil {
		return "", err
	}
	if obj.RoomCode != "" {
		return obj.RoomCode, nil
	}
	return obj.Code, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, errBadPayload), errors.Is(err, errUnknownEvent):
		return "bad_request"
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrRoomClosed):
		return "room_not_found"
	case errors.Is(err, room.ErrWrongPassword):
		return "wrong_password"
	case errors.Is(err, room.ErrNotHost), errors.Is(err, room.ErrNotAuthorized), errors.Is(err, room.ErrNotJudge):
		return "unauthorized"
	case errors.Is(err, room.ErrNoEligibleJudge):
		return "no_judge"
	case errors.Is(err, room.ErrTooManyRooms):
		return "capacity"
	default:
		return "invalid_action"
	}
}

// statusFor returns the text shown to the sender of a rejected command. Most
// rejections stay silent on the wire.
func statusFor(event string, err error) string {
	switch event {
	case network.EventCreateRoom, network.EventJoinRoom, network.EventRejoinRoom:
	default:
		return ""
	}
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "Room not found."
	case errors.Is(err, room.ErrWrongPassword):
		return "Wrong password."
	case errors.Is(err, room.ErrUnknownPlayer):
		return "No player with that name in this room."
	case errors.Is(err, room.ErrInvalidName), errors.Is(err, room.ErrInvalidCount):
		return "Please enter a name and a player count."
	case errors.Is(err, room.ErrTooManyRooms):
		return "Server is full, try again later."
	default:
		return ""
	}
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Ok\n"))
}

func (s *GameServer) handleVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version":  s.version,
		"rooms":    s.roomManager.Count(),
		"sessions": s.sessionManager.Count(),
	})
}

// handleQR renders the join link of a live room as a PNG.
func (s *GameServer) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	live, err := s.roomManager.Get(ps.ByName("code"))
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, live.Code), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *GameServer) joinURL(r *http.Request, code string) string {
	base := strings.TrimSuffix(s.cfg.Server.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?room=" + code
}
