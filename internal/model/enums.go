package model

// Task types
type TaskType string

const (
	TaskTypeScript TaskType = "script"
	TaskTypeImage  TaskType = "image"
	TaskTypeVideo  TaskType = "video"
)

// taskTypeScreenplay is the name older clients use for script tasks.
const taskTypeScreenplay = "screenplay"

var ValidTaskTypes = []TaskType{TaskTypeScript, TaskTypeImage, TaskTypeVideo}

// ParseTaskType normalizes a wire task type, accepting the screenplay alias.
func ParseTaskType(s string) (TaskType, bool) {
	if s == taskTypeScreenplay {
		return TaskTypeScript, true
	}
	for _, t := range ValidTaskTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Task status
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Progress milestones written by the dispatcher.
const (
	ProgressStarted   = 10
	ProgressSubmitted = 30
	ProgressDone      = 100
)
