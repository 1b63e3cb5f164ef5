package constants

const (
	// ServiceName 服务名，用于追踪与日志
	ServiceName = "match-engine"

	// EventProfileChanged 档案创建或编辑后写入发件箱的事件类型
	EventProfileChanged = "profile.changed"

	// 发件箱消息状态
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"

	// 岗位状态
	JobStatusActive = "active"
	JobStatusClosed = "closed"

	// 匹配结果来源
	SourceFast       = "fast"
	SourcePersistent = "persistent"
	SourceComputed   = "computed"
)
