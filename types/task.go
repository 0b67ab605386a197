package types

import "time"

// TaskStatus represents the lifecycle status of a task or subtask.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusAnalyzing  TaskStatus = "analyzing"
	StatusDecomposed TaskStatus = "decomposed"
	StatusInProgress TaskStatus = "in_progress"
	StatusReviewing  TaskStatus = "reviewing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusDecomposed, StatusInProgress,
		StatusReviewing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskPriority orders tasks and messages. Higher values run first.
type TaskPriority int

const (
	PriorityLow    TaskPriority = 1
	PriorityNormal TaskPriority = 5
	PriorityHigh   TaskPriority = 8
	PriorityUrgent TaskPriority = 10
)

// TaskRecord is the composite task a workflow drives to completion.
// SubTasks are owned exclusively by their parent record; their ids are only
// meaningful within it.
type TaskRecord struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Type         string         `json:"type"`
	Priority     TaskPriority   `json:"priority"`
	Status       TaskStatus     `json:"status"`
	Requirements []string       `json:"requirements,omitempty"`
	Constraints  []string       `json:"constraints,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	SubTasks     []SubTask      `json:"subtasks,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Agents       []string       `json:"assigned_agents,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// SubTask is a decomposed unit of a TaskRecord with its own status and
// dependency edges onto sibling subtasks.
type SubTask struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Type         string         `json:"type"`
	Agent        string         `json:"assigned_agent,omitempty"`
	Status       TaskStatus     `json:"status"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Priority     TaskPriority   `json:"priority"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// SubTaskByID returns the subtask with the given id.
func (t *TaskRecord) SubTaskByID(id string) (*SubTask, bool) {
	for i := range t.SubTasks {
		if t.SubTasks[i].ID == id {
			return &t.SubTasks[i], true
		}
	}
	return nil, false
}

// Ready reports whether every dependency of the subtask is completed within
// the parent record. Unknown dependency ids make the subtask not ready.
func (t *TaskRecord) Ready(st *SubTask) bool {
	for _, dep := range st.Dependencies {
		other, ok := t.SubTaskByID(dep)
		if !ok || other.Status != StatusCompleted {
			return false
		}
	}
	return true
}
