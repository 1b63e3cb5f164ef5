package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Profile 候选人档案，原始字段以 JSON 保存
type Profile struct {
	ProfileID string         `gorm:"type:char(36);primaryKey" json:"profile_id"`
	UserID    string         `gorm:"type:varchar(64);not null;index:idx_profiles_user_id" json:"user_id"`
	Version   int            `gorm:"not null;default:1" json:"version"`
	Data      datatypes.JSON `gorm:"type:json;not null" json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// Job 岗位，原始字段以 JSON 保存；Status 列以外的字段只用于展示和检索
type Job struct {
	JobID     string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`
	Company   string         `gorm:"type:varchar(255)" json:"company"`
	Status    string         `gorm:"type:varchar(32);not null;default:'active';index:idx_jobs_status" json:"status"`
	Data      datatypes.JSON `gorm:"type:json;not null" json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobMatch 某用户某档案最近一次的匹配结果（持久层缓存）
type JobMatch struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	UserID    string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_job_matches_user_profile"`
	ProfileID string         `gorm:"type:char(36);not null;uniqueIndex:idx_job_matches_user_profile"`
	Version   int            `gorm:"not null;default:0"` // 计算时的档案版本
	Matches   datatypes.JSON `gorm:"type:json;not null"`
	UpdatedAt time.Time      `gorm:"index:idx_job_matches_updated_at"`
}

func (JobMatch) TableName() string {
	return "job_matches"
}

// RecordToJSON 将记录序列化为 datatypes.JSON
func RecordToJSON(v map[string]any) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return datatypes.JSON(b), nil
}

// JSONToRecord 将 datatypes.JSON 反序列化为 map
func JSONToRecord(data datatypes.JSON) (map[string]any, error) {
	out := map[string]any{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return out, nil
}

// Record 返回档案原始字段
func (p *Profile) Record() (map[string]any, error) {
	return JSONToRecord(p.Data)
}

// Record 返回岗位原始字段，id 与 status 以列值为准
func (j *Job) Record() (map[string]any, error) {
	rec, err := JSONToRecord(j.Data)
	if err != nil {
		return nil, err
	}
	rec["id"] = j.JobID
	rec["status"] = j.Status
	return rec, nil
}
