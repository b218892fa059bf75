package domain

import "errors"

var (
	// ErrAlreadyRunning 批量任务已在运行
	ErrAlreadyRunning = errors.New("batch already running")
	// ErrEmptyBatch 批量任务没有可处理的条目
	ErrEmptyBatch = errors.New("batch has no items")
	// ErrTooManyItems 批量条目超过上限
	ErrTooManyItems = errors.New("batch has too many items")
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("job not found")
	// ErrTooManyJobs 活跃任务数超过上限
	ErrTooManyJobs = errors.New("too many active jobs")
	// ErrJobNotActive 任务当前状态不允许该操作
	ErrJobNotActive = errors.New("job is not in a state that allows this action")
)
