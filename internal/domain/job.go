package domain

import "time"

// JobState 批量任务状态
type JobState string

const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobPaused    JobState = "paused"
	JobCompleted JobState = "completed"
	JobStopped   JobState = "stopped"
)

// IsFinished 任务是否已结束
func (s JobState) IsFinished() bool {
	return s == JobCompleted || s == JobStopped
}

// BatchConfig 批量任务配置（对外可序列化的形式）
type BatchConfig struct {
	Concurrency   int           `json:"concurrency"`
	MaxRetries    int           `json:"maxRetries"`
	RetryDelayMs  int64         `json:"retryDelay"`
	TimeoutMs     int64         `json:"timeout"`
	CheckBalance  bool          `json:"checkBalance"`
	RequestFormat RequestFormat `json:"requestFormat,omitempty"`
}

// JobSnapshot 批量任务快照，用于持久化和查询
type JobSnapshot struct {
	ID         string          `json:"id"`
	State      JobState        `json:"state"`
	Config     BatchConfig     `json:"config"`
	Items      []WorkItem      `json:"items"`
	Statistics BatchStatistics `json:"statistics"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}
