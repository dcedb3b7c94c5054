// Package overrides loads the per-task table of known-good agent poses.
//
// The file maps task ids to task records. Besides the descriptive keys
// (scene, tasktype, taskname) every key of a task record is an object id
// mapped to the pose the agent should take to interact with it.
package overrides

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"poseplanner.ai/internal/geom"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("overrides.schema.json", schemaJSON)

// Pose is a precomputed pose for one object.
type Pose struct {
	Position geom.Point3D  `mapstructure:"agent_teleport_position" json:"agent_teleport_position"`
	Rotation geom.Rotation `mapstructure:"agent_rotation" json:"agent_rotation"`
	Horizon  float64       `mapstructure:"agent_cameraHorizon" json:"agent_cameraHorizon"`
	Standing bool          `mapstructure:"agent_isstanding" json:"agent_isstanding"`
}

type Task struct {
	ID       string
	Scene    string
	TaskType string
	TaskName string
	Poses    map[string]Pose
}

var metaKeys = map[string]struct{}{"scene": {}, "tasktype": {}, "taskname": {}}

// Table is read-only after Load.
type Table struct {
	tasks map[string]Task
	ids   []string
}

// Empty is a table with no overrides.
func Empty() *Table { return &Table{tasks: map[string]Task{}} }

func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func Parse(b []byte) (*Table, error) {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		return nil, err
	}
	t := Empty()
	for taskID, v := range raw.(map[string]any) {
		rec := v.(map[string]any)
		task := Task{ID: taskID, Poses: map[string]Pose{}}
		for key, entry := range rec {
			if _, ok := metaKeys[key]; ok {
				continue
			}
			var p Pose
			if err := mapstructure.Decode(entry, &p); err != nil {
				return nil, fmt.Errorf("task %s object %s: %w", taskID, key, err)
			}
			task.Poses[key] = p
		}
		task.Scene, _ = rec["scene"].(string)
		task.TaskType, _ = rec["tasktype"].(string)
		task.TaskName, _ = rec["taskname"].(string)
		t.tasks[taskID] = task
		t.ids = append(t.ids, taskID)
	}
	sort.Strings(t.ids)
	return t, nil
}

func (t *Table) TaskIDs() []string { return append([]string(nil), t.ids...) }

func (t *Table) Task(id string) (Task, bool) {
	task, ok := t.tasks[id]
	return task, ok
}

// Merged flattens every task into one object id -> pose map. When two tasks
// list the same object the task id that sorts last wins.
func (t *Table) Merged() map[string]Pose {
	out := map[string]Pose{}
	for _, id := range t.ids {
		for obj, p := range t.tasks[id].Poses {
			out[obj] = p
		}
	}
	return out
}

// For returns the poses a session should consult: the named task only when
// taskOnly is set, otherwise every task merged.
func (t *Table) For(taskID string, taskOnly bool) map[string]Pose {
	if !taskOnly {
		return t.Merged()
	}
	out := map[string]Pose{}
	for obj, p := range t.tasks[taskID].Poses {
		out[obj] = p
	}
	return out
}
