package types

import (
	"time"
)

// MetricType tags a recorded metric sample
type MetricType string

const (
	MetricVelocity       MetricType = "velocity"
	MetricCycleTime      MetricType = "cycle_time"
	MetricLeadTime       MetricType = "lead_time"
	MetricThroughput     MetricType = "throughput"
	MetricDefectRate     MetricType = "defect_rate"
	MetricReworkRate     MetricType = "rework_rate"
	MetricTaskDuration   MetricType = "task_duration"
	MetricCPUPercent     MetricType = "cpu_percent"
	MetricMemoryPercent  MetricType = "memory_percent"
	MetricIORate         MetricType = "io_rate"
	MetricQualityScore   MetricType = "quality_score"
	MetricCollaboration  MetricType = "collaboration"
)

// MetricSample is one observed value of a metric
type MetricSample struct {
	Type      MetricType
	Value     float64
	Timestamp time.Time
	TeamID    string
	AgentID   string
	SprintID  string
	Metadata  map[string]string
}

// TaskStatus tracks a team task through its lifecycle
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is a unit of work assigned to a team
type Task struct {
	ID          string
	TeamID      string
	Title       string
	Description string
	AssignedTo  string // agent id, optional
	Status      TaskStatus
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// TaskResult reports outcome metrics when a task completes
type TaskResult struct {
	TaskID     string
	Quality    float64 // [0,1]
	Efficiency float64 // [0,1]
	Notes      string
}
