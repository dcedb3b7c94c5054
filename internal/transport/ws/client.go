package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/protocol"
	"poseplanner.ai/internal/scene"
	"poseplanner.ai/internal/sim"
)

// DefaultCallTimeout bounds a call whose context carries no deadline.
const DefaultCallTimeout = 60 * time.Second

// RemoteError is a RESP failure other than a bad argument.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Method, e.Code, e.Message)
}

// Client is a sim.Simulator backed by a remote Server. Calls are serialized;
// each one waits for its RESP before the next REQ is sent.
type Client struct {
	conn    *websocket.Conn
	log     *log.Logger
	welcome protocol.WelcomeMsg

	mu   sync.Mutex
	next uint64
}

var _ sim.Simulator = (*Client)(nil)

func Dial(ctx context.Context, url, name string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{conn: conn, log: logger}
	if err := c.handshake(ctx, name); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Printf("connected to %s (%s)", url, c.welcome.ServerName)
	return c, nil
}

func (c *Client) handshake(ctx context.Context, name string) error {
	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: name}
	if err := writeJSON(c.conn, hello); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	_ = c.conn.SetReadDeadline(deadline(ctx))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if err := json.Unmarshal(msg, &c.welcome); err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if c.welcome.Type != protocol.TypeWelcome {
		return fmt.Errorf("welcome: unexpected %s", c.welcome.Type)
	}
	return nil
}

// Welcome is the server's handshake reply.
func (c *Client) Welcome() protocol.WelcomeMsg { return c.welcome }

// Close does not wait for an in-flight call; that call fails with the
// connection error.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(DefaultCallTimeout)
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	req := protocol.ReqMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("R%d", c.next),
		Method:          method,
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		req.Params = b
	}
	if err := writeJSON(c.conn, req); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	_ = c.conn.SetReadDeadline(deadline(ctx))
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		var resp protocol.RespMsg
		if err := json.Unmarshal(msg, &resp); err != nil {
			return fmt.Errorf("%s: decode resp: %w", method, err)
		}
		if resp.Type != protocol.TypeResp || resp.ReqID != req.ReqID {
			c.log.Printf("%s: dropping stale %s %s", method, resp.Type, resp.ReqID)
			continue
		}
		if !resp.OK {
			if resp.Code == protocol.ErrBadRequest {
				return &sim.BadArgumentError{Op: method, Reason: resp.Message}
			}
			return &RemoteError{Method: method, Code: resp.Code, Message: resp.Message}
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) action(ctx context.Context, method string, params any) (sim.Result, error) {
	var r protocol.ActionResult
	if err := c.call(ctx, method, params, &r); err != nil {
		return sim.Result{}, err
	}
	return sim.Result{Success: r.Success, ErrorMessage: r.ErrorMessage, Metadata: r.Metadata}, nil
}

func (c *Client) ReachablePositions(ctx context.Context) ([]geom.Point3D, error) {
	var r protocol.ReachableResult
	if err := c.call(ctx, protocol.MethodReachable, nil, &r); err != nil {
		return nil, err
	}
	return r.Positions, nil
}

func (c *Client) InteractablePoses(ctx context.Context, objectID string) ([]scene.CandidatePose, error) {
	var r protocol.PosesResult
	if err := c.call(ctx, protocol.MethodPoses, protocol.PosesParams{ObjectID: objectID}, &r); err != nil {
		return nil, err
	}
	return r.Poses, nil
}

func (c *Client) Teleport(ctx context.Context, pos geom.Point3D, rot geom.Rotation, horizon float64, standing bool) (sim.Result, error) {
	return c.action(ctx, protocol.MethodTeleport, protocol.TeleportParams{Position: pos, Rotation: rot, Horizon: horizon, Standing: standing})
}

func (c *Client) Rotate(ctx context.Context, dir sim.Direction, degrees float64) (sim.Result, error) {
	return c.action(ctx, protocol.MethodRotate, protocol.TurnParams{Direction: string(dir), Degrees: degrees})
}

func (c *Client) Look(ctx context.Context, dir sim.Direction, degrees float64) (sim.Result, error) {
	return c.action(ctx, protocol.MethodLook, protocol.TurnParams{Direction: string(dir), Degrees: degrees})
}

func (c *Client) Stand(ctx context.Context) (sim.Result, error) {
	return c.action(ctx, protocol.MethodStand, nil)
}

func (c *Client) Crouch(ctx context.Context) (sim.Result, error) {
	return c.action(ctx, protocol.MethodCrouch, nil)
}

func (c *Client) Move(ctx context.Context, dir sim.Direction, meters float64) (sim.Result, error) {
	return c.action(ctx, protocol.MethodMove, protocol.MoveParams{Direction: string(dir), Meters: meters})
}

func (c *Client) Interact(ctx context.Context, kind sim.Interaction, objectID string) (sim.Result, error) {
	return c.action(ctx, protocol.MethodInteract, protocol.InteractParams{Kind: string(kind), ObjectID: objectID})
}

func (c *Client) Scene(ctx context.Context) (scene.Metadata, error) {
	var r protocol.SceneResult
	if err := c.call(ctx, protocol.MethodScene, nil, &r); err != nil {
		return scene.Metadata{}, err
	}
	return r.Metadata, nil
}

func (c *Client) Frame(ctx context.Context, label string) (string, error) {
	var r protocol.FrameResult
	if err := c.call(ctx, protocol.MethodFrame, protocol.FrameParams{Label: label}, &r); err != nil {
		return "", err
	}
	return r.Ref, nil
}
