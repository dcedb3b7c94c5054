package protocol

import (
	"encoding/json"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
)

type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	TaskID          string `json:"task_id,omitempty"`
}

type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ServerName      string   `json:"server_name"`
	SceneName       string   `json:"scene_name,omitempty"`
	Methods         []string `json:"methods"`
}

// ReqMsg carries one simulator call. Params decode per Method.
type ReqMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// RespMsg answers the REQ with the same ReqID. Code is set only for protocol
// or argument faults; an unsuccessful action is a normal Result.
type RespMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	OK              bool            `json:"ok"`
	Code            string          `json:"code,omitempty"`
	Message         string          `json:"message,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
}

// Methods.
const (
	MethodReachable = "reachable_positions"
	MethodPoses     = "interactable_poses"
	MethodTeleport  = "teleport"
	MethodRotate    = "rotate"
	MethodLook      = "look"
	MethodStand     = "stand"
	MethodCrouch    = "crouch"
	MethodMove      = "move"
	MethodInteract  = "interact"
	MethodScene     = "scene"
	MethodFrame     = "frame"
)

var Methods = []string{
	MethodReachable,
	MethodPoses,
	MethodTeleport,
	MethodRotate,
	MethodLook,
	MethodStand,
	MethodCrouch,
	MethodMove,
	MethodInteract,
	MethodScene,
	MethodFrame,
}

type PosesParams struct {
	ObjectID string `json:"object_id"`
}

type TeleportParams struct {
	Position geom.Point3D  `json:"position"`
	Rotation geom.Rotation `json:"rotation"`
	Horizon  float64       `json:"horizon"`
	Standing bool          `json:"standing"`
}

// TurnParams serves rotate and look.
type TurnParams struct {
	Direction string  `json:"direction"`
	Degrees   float64 `json:"degrees"`
}

type MoveParams struct {
	Direction string  `json:"direction"`
	Meters    float64 `json:"meters"`
}

type InteractParams struct {
	Kind     string `json:"kind"`
	ObjectID string `json:"object_id"`
}

type FrameParams struct {
	Label string `json:"label"`
}

type ReachableResult struct {
	Positions []geom.Point3D `json:"positions"`
}

type PosesResult struct {
	Poses []scene.CandidatePose `json:"poses"`
}

// ActionResult is returned by every mutating method.
type ActionResult struct {
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     scene.Metadata `json:"metadata"`
}

type SceneResult struct {
	Metadata scene.Metadata `json:"metadata"`
}

type FrameResult struct {
	Ref string `json:"ref"`
}
