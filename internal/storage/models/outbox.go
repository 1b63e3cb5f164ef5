package models

import "time"

// OutboxMessage 发件箱消息，与档案写入同一事务，由中继异步投递到 RabbitMQ
//
// 状态流转: PENDING -> SENT，或重试耗尽后 FAILED
type OutboxMessage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`
	// AggregateID 档案 ID
	AggregateID      string `gorm:"type:varchar(64);not null;index"`
	EventType        string `gorm:"type:varchar(64);not null"`
	Payload          string `gorm:"type:json;not null"`
	TargetExchange   string `gorm:"type:varchar(128);not null"`
	TargetRoutingKey string `gorm:"type:varchar(128);not null"`

	Status       string     `gorm:"type:varchar(16);default:'PENDING';not null;index:idx_outbox_status_created"`
	RetryCount   int        `gorm:"not null;default:0"`
	ErrorMessage string     `gorm:"type:text"`
	CreatedAt    time.Time  `gorm:"index:idx_outbox_status_created,sort:asc"`
	ProcessedAt  *time.Time `gorm:"index"` // 投递成功或判定失败的时间，清理任务据此删除
}

func (OutboxMessage) TableName() string { return "outbox_messages" }
