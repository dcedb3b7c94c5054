package main

import (
	"bytes"
	"strings"
	"testing"

	persistlog "poseplanner.ai/internal/persistence/log"
	"poseplanner.ai/internal/persistence/snapshot"
	"poseplanner.ai/internal/scene"
	"poseplanner.ai/internal/session"
)

func TestLoadAndPrint(t *testing.T) {
	dir := t.TempDir()
	rec := persistlog.NewRecorder(dir)
	_ = rec.WriteSession(session.SessionEntry{SessionID: "s1", TaskID: "t1", StartedAt: "2026-01-01T00:00:00Z"})
	_ = rec.WriteAttempt(session.AttemptEntry{SessionID: "s1", Step: 1, Attempt: 1})
	_ = rec.WriteAttempt(session.AttemptEntry{SessionID: "s1", Step: 1, Attempt: 2, Success: true})
	_ = rec.WriteStep(session.StepEntry{SessionID: "s1", Step: 1, Action: "navigate to", Success: true,
		Navigation: &session.NavOutcome{Status: session.NavSuccess}})
	_ = rec.WriteStep(session.StepEntry{SessionID: "s1", Step: 2, Action: "pickup", Rejected: "not legal"})
	_ = rec.WriteStep(session.StepEntry{SessionID: "s1", Step: 3, Action: "navigate to",
		Navigation: &session.NavOutcome{Status: session.NavExhausted}})
	_ = rec.WriteSession(session.SessionEntry{SessionID: "s1", TaskID: "t1", Steps: 3, Ended: true})
	_ = rec.WriteSession(session.SessionEntry{SessionID: "s2", TaskID: "t2", StartedAt: "2026-01-02T00:00:00Z"})
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sums, err := load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s1 := sums["s1"]
	if s1 == nil || !s1.Ended || s1.Steps != 3 || s1.Succeeded != 1 || s1.Rejected != 1 {
		t.Fatalf("s1: %+v", s1)
	}
	if s1.Navigations != 2 || s1.NavSucceeded != 1 || s1.NavExhausted != 1 || s1.Attempts != 2 || s1.TeleportFails != 1 {
		t.Fatalf("s1 nav: %+v", s1)
	}
	if s1.StartedAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("end entry should not clear start: %q", s1.StartedAt)
	}

	var buf bytes.Buffer
	printSummaries(&buf, sums, "")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "session s1 ") || !strings.HasPrefix(lines[1], "session s2 ") {
		t.Fatalf("output:\n%s", buf.String())
	}
	buf.Reset()
	printSummaries(&buf, sums, "s2")
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("filtered output:\n%s", buf.String())
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	sums, err := load(t.TempDir())
	if err != nil || len(sums) != 0 {
		t.Fatalf("got %v %v", sums, err)
	}
}

func TestPrintScene(t *testing.T) {
	snap := snapshot.SceneV1{
		Header: snapshot.Header{Version: snapshot.Version, SessionID: "s1", Step: 2},
		Metadata: scene.Metadata{Objects: []scene.ObjectDescriptor{
			{ID: "Fridge|1", Type: "Fridge", Visible: true, Contents: []string{"Egg|1"}},
			{ID: "Egg|1", Type: "Egg"},
		}},
	}
	var buf bytes.Buffer
	printScene(&buf, snap)
	out := buf.String()
	if !strings.Contains(out, "session=s1") || !strings.Contains(out, "objects=2") || !strings.Contains(out, "[Egg|1]") {
		t.Fatalf("output:\n%s", out)
	}
	if strings.Count(out, "\n") != 4 {
		t.Fatalf("expected header, agent and one line per object:\n%s", out)
	}
}
