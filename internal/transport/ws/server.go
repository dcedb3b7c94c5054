// Package ws carries the simulator surface over a websocket: Server exposes
// any sim.Simulator, Client implements sim.Simulator against a remote Server.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"poseplanner.ai/internal/protocol"
	"poseplanner.ai/internal/sim"
)

type Server struct {
	sim  sim.Simulator
	name string
	log  *log.Logger

	// mu serializes calls from every connection; simulators are single-threaded.
	mu sync.Mutex

	upgrader websocket.Upgrader
}

func NewServer(s sim.Simulator, name string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		sim:  s,
		name: name,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.log.Printf("client %q connected from %s", client, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 8)
		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			resp := s.handle(ctx, msg)
			b, err := json.Marshal(resp)
			if err != nil {
				s.log.Printf("marshal resp %s: %v", resp.ReqID, err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
		<-done
		s.log.Printf("client %q disconnected", client)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", false
	}
	if hello.ClientName == "" {
		hello.ClientName = "planner"
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ServerName:      s.name,
		Methods:         protocol.Methods,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	return hello.ClientName, true
}

// handle turns one REQ into its RESP. Malformed frames still get a RESP so
// the client never waits on a dropped request.
func (s *Server) handle(ctx context.Context, msg []byte) protocol.RespMsg {
	resp := protocol.RespMsg{Type: protocol.TypeResp, ProtocolVersion: protocol.Version}

	var req protocol.ReqMsg
	if err := json.Unmarshal(msg, &req); err != nil || req.Type != protocol.TypeReq {
		return fail(resp, protocol.ErrProtoBadRequest, "expected REQ")
	}
	resp.ReqID = req.ReqID
	if req.ProtocolVersion != protocol.Version {
		return fail(resp, protocol.ErrProtoVersion, "bad protocol_version")
	}

	s.mu.Lock()
	result, err := s.dispatch(ctx, req)
	s.mu.Unlock()
	if err != nil {
		var ce *codedError
		var bad *sim.BadArgumentError
		switch {
		case errors.As(err, &ce):
			return fail(resp, ce.code, ce.msg)
		case errors.As(err, &bad):
			return fail(resp, protocol.ErrBadRequest, bad.Error())
		default:
			s.log.Printf("%s %s: %v", req.Method, req.ReqID, err)
			return fail(resp, protocol.ErrInternal, err.Error())
		}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fail(resp, protocol.ErrInternal, err.Error())
	}
	resp.OK = true
	resp.Result = b
	return resp
}

type codedError struct {
	code, msg string
}

func (e *codedError) Error() string { return e.code + ": " + e.msg }

func decodeParams(req protocol.ReqMsg, v any) error {
	if len(req.Params) == 0 {
		return &codedError{protocol.ErrBadRequest, req.Method + ": missing params"}
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return &codedError{protocol.ErrBadRequest, fmt.Sprintf("%s: %v", req.Method, err)}
	}
	return nil
}

func actionResult(r sim.Result, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return protocol.ActionResult{Success: r.Success, ErrorMessage: r.ErrorMessage, Metadata: r.Metadata}, nil
}

func (s *Server) dispatch(ctx context.Context, req protocol.ReqMsg) (any, error) {
	switch req.Method {
	case protocol.MethodReachable:
		ps, err := s.sim.ReachablePositions(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.ReachableResult{Positions: ps}, nil
	case protocol.MethodPoses:
		var p protocol.PosesParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		poses, err := s.sim.InteractablePoses(ctx, p.ObjectID)
		if err != nil {
			return nil, err
		}
		return protocol.PosesResult{Poses: poses}, nil
	case protocol.MethodTeleport:
		var p protocol.TeleportParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		return actionResult(s.sim.Teleport(ctx, p.Position, p.Rotation, p.Horizon, p.Standing))
	case protocol.MethodRotate, protocol.MethodLook:
		var p protocol.TurnParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		if req.Method == protocol.MethodRotate {
			return actionResult(s.sim.Rotate(ctx, sim.Direction(p.Direction), p.Degrees))
		}
		return actionResult(s.sim.Look(ctx, sim.Direction(p.Direction), p.Degrees))
	case protocol.MethodStand:
		return actionResult(s.sim.Stand(ctx))
	case protocol.MethodCrouch:
		return actionResult(s.sim.Crouch(ctx))
	case protocol.MethodMove:
		var p protocol.MoveParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		return actionResult(s.sim.Move(ctx, sim.Direction(p.Direction), p.Meters))
	case protocol.MethodInteract:
		var p protocol.InteractParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		return actionResult(s.sim.Interact(ctx, sim.Interaction(p.Kind), p.ObjectID))
	case protocol.MethodScene:
		md, err := s.sim.Scene(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.SceneResult{Metadata: md}, nil
	case protocol.MethodFrame:
		var p protocol.FrameParams
		if err := decodeParams(req, &p); err != nil {
			return nil, err
		}
		ref, err := s.sim.Frame(ctx, p.Label)
		if err != nil {
			return nil, err
		}
		return protocol.FrameResult{Ref: ref}, nil
	default:
		return nil, &codedError{protocol.ErrUnknownMethod, "unknown method " + req.Method}
	}
}

func fail(resp protocol.RespMsg, code, msg string) protocol.RespMsg {
	resp.OK = false
	resp.Code = code
	resp.Message = msg
	return resp
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
