// Package model contains domain models passed between layers.
package model

// Canonical telemetry field names.
const (
	UserID          = "user_id"
	DeviceType      = "device_type"
	TaskType        = "task_type"
	InteractionType = "interaction_type"
	LevelName       = "level_name"
	TrialNo         = "trial_no"
	TargetIndex     = "target_index"
	GridIndex       = "grid_index"
	ReactionTime    = "reaction_time"
	StartTime       = "start_time"
	EndTime         = "end_time"
	Timestamp       = "timestamp"
	AppearTime      = "appear_time"
	GazeTargetX     = "gaze_target_x"
	GazeTargetY     = "gaze_target_y"
	GazeTargetZ     = "gaze_target_z"
	GazeX           = "gaze_x"
	GazeY           = "gaze_y"
	GazeZ           = "gaze_z"
	Result          = "interaction_result"
	Process         = "process"
)

// fields is the canonical column order. It is also the header row of every store.
var fields = []string{
	UserID, DeviceType, TaskType, InteractionType, LevelName,
	TrialNo, TargetIndex, GridIndex, ReactionTime,
	StartTime, EndTime, Timestamp, AppearTime,
	GazeTargetX, GazeTargetY, GazeTargetZ, GazeX, GazeY, GazeZ,
	Result, Process,
}

var position = func() map[string]int {
	m := make(map[string]int, len(fields))
	for i, f := range fields {
		m[f] = i
	}
	return m
}()

// Fields returns a copy of the canonical header.
func Fields() []string {
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// FieldCount is the number of canonical columns.
func FieldCount() int { return len(fields) }

// Index returns the canonical column position of name.
func Index(name string) (int, bool) {
	i, ok := position[name]
	return i, ok
}

// Row is one normalized telemetry record in canonical column order.
type Row []string

// Get returns the value of a canonical field, or "" for unknown names.
func (r Row) Get(name string) string {
	i, ok := position[name]
	if !ok || i >= len(r) {
		return ""
	}
	return r[i]
}

// Map returns the row as a field name to value mapping.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(fields))
	for i, f := range fields {
		if i < len(r) {
			m[f] = r[i]
		} else {
			m[f] = ""
		}
	}
	return m
}

// Table is the result of reading a store: header row followed by data rows
// in write order. Rows are laid out according to Header, which may differ
// from the canonical order for data written by older releases.
type Table struct {
	Header []string
	Rows   [][]string
}

// Canonical re-keys every data row by header name into canonical order.
// Columns the header does not carry become "", unknown columns are ignored.
func (t Table) Canonical() []Row {
	src := make([]int, len(fields))
	for i := range src {
		src[i] = -1
	}
	for col, name := range t.Header {
		if i, ok := position[name]; ok {
			src[i] = col
		}
	}

	out := make([]Row, 0, len(t.Rows))
	for _, raw := range t.Rows {
		row := make(Row, len(fields))
		for i, col := range src {
			if col >= 0 && col < len(raw) {
				row[i] = raw[col]
			}
		}
		out = append(out, row)
	}
	return out
}
