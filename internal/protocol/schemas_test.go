package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Round the Go value through JSON so the validator sees plain maps.
	asJSON := func(v any) any {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(asJSON(v)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	reqSchema := compile("req.schema.json")
	respSchema := compile("resp.schema.json")

	validate(helloSchema, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "planner",
		TaskID:          "trial_00003",
	})
	validate(welcomeSchema, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ServerName:      "simserver",
		Methods:         protocol.Methods,
	})

	params, _ := json.Marshal(protocol.TeleportParams{
		Position: geom.Point3D{X: 1, Z: 2},
		Rotation: geom.Rotation{Y: 90},
		Horizon:  60,
		Standing: true,
	})
	validate(reqSchema, protocol.ReqMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		ReqID:           "R1",
		Method:          protocol.MethodTeleport,
		Params:          params,
	})

	result, _ := json.Marshal(protocol.FrameResult{Ref: "frame-0001"})
	validate(respSchema, protocol.RespMsg{
		Type:            protocol.TypeResp,
		ProtocolVersion: protocol.Version,
		ReqID:           "R1",
		OK:              true,
		Result:          result,
	})
	validate(respSchema, protocol.RespMsg{
		Type:            protocol.TypeResp,
		ProtocolVersion: protocol.Version,
		ReqID:           "R2",
		Code:            protocol.ErrUnknownMethod,
		Message:         "no such method",
	})

	var bad any
	_ = json.Unmarshal([]byte(`{"type":"RESP","protocol_version":"1.0","req_id":"R3","ok":false}`), &bad)
	if err := respSchema.Validate(bad); err == nil {
		t.Fatalf("expected failed RESP without code to be rejected")
	}
	_ = json.Unmarshal([]byte(`{"type":"REQ","protocol_version":"1.0","req_id":"R4","method":"fly"}`), &bad)
	if err := reqSchema.Validate(bad); err == nil {
		t.Fatalf("expected unknown method to be rejected")
	}
}

func TestMethodsCoveredBySchema(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "req.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, m := range protocol.Methods {
		var v any
		_ = json.Unmarshal([]byte(`{"type":"REQ","protocol_version":"1.0","req_id":"R","method":"`+m+`"}`), &v)
		if err := s.Validate(v); err != nil {
			t.Fatalf("method %s: %v", m, err)
		}
	}
}
