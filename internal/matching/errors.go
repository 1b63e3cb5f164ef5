package matching

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPolicy 策略校验失败
	ErrInvalidPolicy = errors.New("invalid matching policy")
	// ErrNonFiniteScore 计算结果为 NaN/Inf
	ErrNonFiniteScore = errors.New("non-finite score")
)

// JobError 单个岗位在提取/打分阶段的失败，只记录日志，不会中断整批计算
type JobError struct {
	JobID string
	Op    string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %s: %v", e.JobID, e.Op, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
