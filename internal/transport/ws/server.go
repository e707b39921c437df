package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ctfbuddy.ai/internal/ctf/command"
	"ctfbuddy.ai/internal/protocol"
	"ctfbuddy.ai/internal/sim/world"
)

const (
	outQueueSize = 64
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
	quitTimeout  = 5 * time.Second
)

// ActResult is the event name reporting the outcome of an ACT.
const ActResult = "ACT_RESULT"

type Server struct {
	world *world.World
	cmds  *command.Dispatcher
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, cmds *command.Dispatcher, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		world: w,
		cmds:  cmds,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, outQueueSize)
		player := s.handshake(ctx, conn, out)
		if player == nil {
			return
		}
		id := player.ID()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.route(ctx, id, msg)
		}

		// Cleanup: the disconnect is a quit, even for a carrier.
		qctx, qcancel := context.WithTimeout(context.Background(), quitTimeout)
		defer qcancel()
		if err := s.world.Quit(qctx, id); err != nil && !errors.Is(err, world.ErrEntityNotFound) {
			s.log.Printf("quit player=%s: %v", id, err)
		}
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, out chan []byte) *world.Entity {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoUnsupported, "bad protocol_version"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}
	if err := protocol.ValidateClient(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}

	p, err := s.world.Join(ctx, hello.PlayerName, out)
	if err != nil {
		s.log.Printf("join %q: %v", hello.PlayerName, err)
		_ = writeJSON(conn, protocol.NewError(protocol.ErrWorldBusy, err.Error()))
		return nil
	}
	loc := p.Location()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        p.ID().String(),
		Realm:           loc.Realm,
		Pos:             loc.Pos.ToArray(),
		TickRateHz:      s.world.Config().TickRateHz,
		Realms:          s.world.RealmIDs(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		qctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
		defer cancel()
		_ = s.world.Quit(qctx, p.ID())
		return nil
	}
	return p
}

// route handles one client message after the handshake. Replies go through
// the player's out queue.
func (s *Server) route(ctx context.Context, id uuid.UUID, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.reply(id, protocol.NewError(protocol.ErrProtoBadRequest, "malformed json"))
		return
	}
	if base.ProtocolVersion != protocol.Version {
		s.reply(id, protocol.NewError(protocol.ErrProtoUnsupported, "bad protocol_version"))
		return
	}
	if err := protocol.ValidateClient(base.Type, msg); err != nil {
		s.reply(id, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return
	}

	switch base.Type {
	case protocol.TypeCommand:
		var m protocol.CommandMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.reply(id, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		res := s.cmds.Execute(ctx, id, m.Line)
		s.reply(id, protocol.CommandResultMsg{
			Type:            protocol.TypeCommandResult,
			ProtocolVersion: protocol.Version,
			ID:              m.ID,
			OK:              res.OK,
			Code:            res.Code,
			Lines:           res.Lines,
		})
	case protocol.TypeComplete:
		var m protocol.CompleteMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.reply(id, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		opts := s.cmds.Complete(m.Line)
		if opts == nil {
			opts = []string{}
		}
		s.reply(id, protocol.CompletionsMsg{
			Type:            protocol.TypeCompletions,
			ProtocolVersion: protocol.Version,
			ID:              m.ID,
			Options:         opts,
		})
	case protocol.TypeAct:
		var m protocol.ActMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			s.reply(id, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		err := s.act(ctx, id, m)
		ev := protocol.Event{"type": ActResult, "id": m.ID, "kind": m.Kind, "ok": err == nil}
		if err != nil {
			ev["code"] = actCode(err)
			ev["message"] = err.Error()
		}
		s.reply(id, protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Tick:            s.world.CurrentTick(),
			Event:           ev,
		})
	default:
		s.reply(id, protocol.NewError(protocol.ErrProtoUnsupported, "unsupported type "+base.Type))
	}
}

func (s *Server) act(ctx context.Context, id uuid.UUID, m protocol.ActMsg) error {
	switch m.Kind {
	case protocol.ActMove:
		if m.Pos == nil {
			return errBadAct
		}
		pos := world.Vec3iFromArray(*m.Pos)
		return s.world.DoEntity(ctx, id, func(r *world.Region, e *world.Entity) { r.Move(e, pos) })
	case protocol.ActPortal:
		return s.world.Transfer(ctx, id, m.Realm)
	case protocol.ActDrop, protocol.ActDropHead:
		var derr error
		err := s.world.DoEntity(ctx, id, func(r *world.Region, e *world.Entity) {
			if m.Kind == protocol.ActDrop {
				_, derr = r.DropMainHand(e)
			} else {
				_, derr = r.DropHead(e)
			}
		})
		if err != nil {
			return err
		}
		return derr
	default:
		return errBadAct
	}
}

var errBadAct = errors.New("bad act")

func actCode(err error) string {
	switch {
	case errors.Is(err, errBadAct):
		return protocol.ErrBadRequest
	case errors.Is(err, world.ErrPortalCancelled), errors.Is(err, world.ErrBound):
		return protocol.ErrBlocked
	case errors.Is(err, world.ErrNothingToDrop):
		return protocol.ErrInvalidTarget
	case errors.Is(err, world.ErrRealmNotFound):
		return protocol.ErrWorldNotFound
	case errors.Is(err, world.ErrRealmUnloaded):
		return protocol.ErrWorldDenied
	case errors.Is(err, world.ErrEntityNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, world.ErrRegionStopped), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrWorldBusy
	default:
		return protocol.ErrInternal
	}
}

func (s *Server) reply(id uuid.UUID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("encode reply player=%s: %v", id, err)
		return
	}
	s.world.Send(id, b)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
