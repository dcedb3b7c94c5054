package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	persistlog "poseplanner.ai/internal/persistence/log"
	"poseplanner.ai/internal/persistence/snapshot"
	"poseplanner.ai/internal/session"
)

func main() {
	var (
		dataDir   = flag.String("data", "./data", "runtime data directory (contains sessions/, steps/, attempts/)")
		sessionID = flag.String("session", "", "only summarize this session id (optional)")
		snapPath  = flag.String("snapshot", "", "print a .scene.zst snapshot instead of the logs")
	)
	flag.Parse()

	if *snapPath != "" {
		snap, err := snapshot.Read(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		printScene(os.Stdout, snap)
		return
	}

	sums, err := load(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if len(sums) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found in", *dataDir)
		os.Exit(1)
	}
	printSummaries(os.Stdout, sums, *sessionID)
}

type summary struct {
	ID        string
	TaskID    string
	StartedAt string
	Ended     bool

	Steps     int
	Succeeded int
	Rejected  int

	Navigations   int
	NavSucceeded  int
	NavExhausted  int
	NavNoCands    int
	Overrides     int
	Attempts      int
	TeleportFails int
}

func (s *summary) addStep(e session.StepEntry) {
	s.Steps++
	switch {
	case e.Rejected != "":
		s.Rejected++
	case e.Success:
		s.Succeeded++
	}
	if n := e.Navigation; n != nil {
		s.Navigations++
		switch n.Status {
		case session.NavSuccess:
			s.NavSucceeded++
		case session.NavExhausted:
			s.NavExhausted++
		case session.NavNoCandidates:
			s.NavNoCands++
		}
		if n.UsedOverride {
			s.Overrides++
		}
	}
}

func (s *summary) addAttempt(e session.AttemptEntry) {
	s.Attempts++
	if !e.Success {
		s.TeleportFails++
	}
}

func load(dataDir string) (map[string]*summary, error) {
	sums := map[string]*summary{}
	get := func(id string) *summary {
		s, ok := sums[id]
		if !ok {
			s = &summary{ID: id}
			sums[id] = s
		}
		return s
	}

	err := each(filepath.Join(dataDir, "sessions"), "sessions", func(line []byte) error {
		var e session.SessionEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		s := get(e.SessionID)
		s.TaskID = e.TaskID
		if e.StartedAt != "" {
			s.StartedAt = e.StartedAt
		}
		s.Ended = s.Ended || e.Ended
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = each(filepath.Join(dataDir, "steps"), "steps", func(line []byte) error {
		var e session.StepEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		get(e.SessionID).addStep(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = each(filepath.Join(dataDir, "attempts"), "attempts", func(line []byte) error {
		var e session.AttemptEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		get(e.SessionID).addAttempt(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sums, nil
}

// each visits every line of every file for prefix; a missing directory has no lines.
func each(dir, prefix string, fn func(line []byte) error) error {
	files, err := persistlog.ListFiles(dir, prefix)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := persistlog.ReadFile(f, fn); err != nil {
			return err
		}
	}
	return nil
}

func printSummaries(w io.Writer, sums map[string]*summary, only string) {
	list := make([]*summary, 0, len(sums))
	for _, s := range sums {
		if only != "" && s.ID != only {
			continue
		}
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt != list[j].StartedAt {
			return list[i].StartedAt < list[j].StartedAt
		}
		return list[i].ID < list[j].ID
	})
	for _, s := range list {
		fmt.Fprintf(w, "session %s task=%q started=%s ended=%v steps=%d ok=%d rejected=%d nav=%d/%d exhausted=%d no_candidates=%d overrides=%d teleports=%d failed=%d\n",
			s.ID, s.TaskID, s.StartedAt, s.Ended, s.Steps, s.Succeeded, s.Rejected,
			s.NavSucceeded, s.Navigations, s.NavExhausted, s.NavNoCands, s.Overrides, s.Attempts, s.TeleportFails)
	}
}

func printScene(w io.Writer, snap snapshot.SceneV1) {
	h := snap.Header
	a := snap.Metadata.Agent
	fmt.Fprintf(w, "snapshot v%d session=%s task=%q step=%d taken=%s objects=%d\n",
		h.Version, h.SessionID, h.TaskID, h.Step, h.TakenAt, len(snap.Metadata.Objects))
	fmt.Fprintf(w, "agent pos=(%.2f,%.2f,%.2f) yaw=%g horizon=%g standing=%v held=%q\n",
		a.Position.X, a.Position.Y, a.Position.Z, a.Rotation.Y, a.Horizon, a.Standing, a.HeldObjectID)
	for _, o := range snap.Metadata.Objects {
		fmt.Fprintf(w, "  %-24s visible=%-5v vol=%.4f surface=%.4f contents=%v\n",
			o.ID, o.Visible, o.Volume(), o.SurfaceArea(), o.Contents)
	}
}
