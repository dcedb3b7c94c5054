package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"poseplanner.ai/internal/overrides"
	"poseplanner.ai/internal/persistence/indexdb"
	persistlog "poseplanner.ai/internal/persistence/log"
	"poseplanner.ai/internal/persistence/snapshot"
	"poseplanner.ai/internal/session"
	"poseplanner.ai/internal/transport/ws"
	"poseplanner.ai/internal/tuning"
)

func main() {
	var (
		simURL        = flag.String("sim", "ws://127.0.0.1:8070/v1/sim", "simulator websocket url")
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (optional, defaults apply)")
		overridesPath = flag.String("overrides", "", "path to the override pose table (optional)")
		taskID        = flag.String("task", "", "task id")
		taskOnly      = flag.Bool("task_only", false, "consult only the overrides recorded for -task")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite session index")
		decisionsPath = flag.String("decisions", "", "file with one decision per line (default: positional args)")
		autoInit      = flag.Bool("auto_init", true, "run init and observe before the decisions")
		targets       = flag.String("targets", "", "pinned target ids, e.g. Apple=Apple|2;Mug=Mug|1,Mug|3")
		related       = flag.String("related", "", "comma-separated task object ids")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[planner] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	table := overrides.Empty()
	if strings.TrimSpace(*overridesPath) != "" {
		if table, err = overrides.Load(*overridesPath); err != nil {
			logger.Fatalf("load overrides: %v", err)
		}
	}
	decisions, err := readDecisions(*decisionsPath, flag.Args(), *autoInit)
	if err != nil {
		logger.Fatalf("decisions: %v", err)
	}
	pinned, err := parseTargets(*targets)
	if err != nil {
		logger.Fatalf("targets: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ws.Dial(ctx, *simURL, "planner", logger)
	if err != nil {
		logger.Fatalf("connect simulator: %v", err)
	}
	defer client.Close()

	rec := persistlog.NewRecorder(*dataDir)
	defer rec.Close()
	opts := session.Options{
		TaskID:         *taskID,
		Config:         tune.SessionConfig(),
		Planner:        tune.PlannerConfig(),
		Align:          tune.AlignConfig(),
		Overrides:      table.For(*taskID, *taskOnly),
		TargetIDs:      pinned,
		Related:        splitList(*related, ","),
		SessionLoggers: []session.SessionLogger{rec},
		StepLoggers:    []session.StepLogger{rec},
		AttemptLoggers: []session.AttemptLogger{rec},
		Logger:         logger,
	}

	if !*disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "planner.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer func() {
			if st := idx.Stats(); st.DropSessionTotal+st.DropStepTotal+st.DropAttemptTotal > 0 {
				logger.Printf("index dropped entries: %+v", st)
			}
			_ = idx.Close()
		}()
		if err := idx.UpsertConfig("tuning", tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
		if err := idx.UpsertConfig("overrides", opts.Overrides); err != nil {
			logger.Printf("index: upsert overrides: %v", err)
		}
		opts.SessionLoggers = append(opts.SessionLoggers, idx)
		opts.StepLoggers = append(opts.StepLoggers, idx)
		opts.AttemptLoggers = append(opts.AttemptLoggers, idx)
	}

	sess, err := session.New(ctx, client, opts)
	if err != nil {
		logger.Fatalf("start session: %v", err)
	}
	defer sess.Close()
	saveScene(*dataDir, *taskID, sess, logger)

	if err := run(ctx, sess, decisions, os.Stdout, logger); err != nil {
		logger.Printf("session %s: %v", sess.ID(), err)
	}
	saveScene(*dataDir, *taskID, sess, logger)
	nav, inter := sess.Vocabulary()
	logger.Printf("session %s: done after %d steps; navigable=%v interactable=%v", sess.ID(), sess.Steps(), nav, inter)
}

// run steps through the decisions, printing one JSON line per step. It stops
// at the first transport fault, at End or when the step budget is spent.
func run(ctx context.Context, sess *session.Session, decisions []string, out io.Writer, logger *log.Logger) error {
	enc := json.NewEncoder(out)
	for _, line := range decisions {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := session.ParseDecision(line)
		if err != nil {
			logger.Printf("skip %q: %v", line, err)
			continue
		}
		r, err := sess.Step(ctx, d)
		if errors.Is(err, session.ErrStepBudget) || errors.Is(err, session.ErrEnded) {
			logger.Printf("stop before %q: %v", line, err)
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(stepLine(r)); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		if sess.Ended() {
			return nil
		}
	}
	return nil
}

type stepOutput struct {
	Step         int      `json:"step"`
	Decision     string   `json:"decision"`
	ObjectID     string   `json:"object_id,omitempty"`
	Success      bool     `json:"success"`
	Rejected     string   `json:"rejected,omitempty"`
	Message      string   `json:"message,omitempty"`
	NavStatus    string   `json:"nav_status,omitempty"`
	Attempts     int      `json:"attempts,omitempty"`
	Frames       []string `json:"frames,omitempty"`
	Navigations  []string `json:"legal_navigations"`
	Interactions []string `json:"legal_interactions"`
}

func stepLine(r session.StepResult) stepOutput {
	o := stepOutput{
		Step:         r.Step,
		Decision:     r.Decision.String(),
		ObjectID:     r.ObjectID,
		Success:      r.Success,
		Rejected:     r.Rejected,
		Message:      r.Message,
		Frames:       r.Frames,
		Navigations:  r.Navigations,
		Interactions: r.Interactions,
	}
	if r.Navigation != nil {
		o.NavStatus = string(r.Navigation.Status)
		o.Attempts = len(r.Navigation.Attempts)
	}
	return o
}

func saveScene(dataDir, taskID string, sess *session.Session, logger *log.Logger) {
	path := snapshot.Path(dataDir, sess.ID(), sess.Steps())
	err := snapshot.Write(path, snapshot.SceneV1{
		Header: snapshot.Header{
			SessionID: sess.ID(),
			TaskID:    taskID,
			Step:      sess.Steps(),
			TakenAt:   time.Now().UTC().Format(time.RFC3339Nano),
		},
		Metadata: sess.Metadata(),
	})
	if err != nil {
		logger.Printf("snapshot %s: %v", path, err)
	}
}
