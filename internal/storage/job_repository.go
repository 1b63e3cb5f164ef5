package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm/clause"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/storage/models"
)

// JobRepository 岗位存储
type JobRepository struct {
	mysql *MySQL
}

// NewJobRepository 创建岗位存储
func NewJobRepository(m *MySQL) *JobRepository {
	return &JobRepository{mysql: m}
}

// SaveJob 按 id 新建或覆盖岗位；记录中没有 id 时生成一个
func (r *JobRepository) SaveJob(ctx context.Context, data map[string]any) (*models.Job, error) {
	rec := make(map[string]any, len(data)+1)
	for k, v := range data {
		rec[k] = v
	}

	id := firstString(rec, "id", "_id", "job_id")
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
		}
		id = u.String()
	}
	rec["id"] = id

	status := strings.ToLower(firstString(rec, "status"))
	if status == "" {
		status = constants.JobStatusActive
	}
	delete(rec, "status")

	raw, err := models.RecordToJSON(rec)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		JobID:   id,
		Title:   firstString(rec, "title", "job_title"),
		Company: firstString(rec, "company", "companyName"),
		Status:  status,
		Data:    raw,
	}
	err = r.mysql.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "company", "status", "data", "updated_at"}),
		}).
		Create(job).Error
	if err != nil {
		return nil, fmt.Errorf("保存岗位失败: %w", err)
	}
	return job, nil
}

// ListActiveJobs 返回全部 active 岗位，按 id 排序
func (r *JobRepository) ListActiveJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := r.mysql.DB().WithContext(ctx).
		Where("status = ?", constants.JobStatusActive).
		Order("job_id asc").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus 修改岗位状态，岗位不存在时返回 ErrNotFound
func (r *JobRepository) UpdateJobStatus(ctx context.Context, jobID, status string) error {
	res := r.mysql.DB().WithContext(ctx).
		Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Update("status", strings.ToLower(status))
	if res.Error != nil {
		return fmt.Errorf("更新岗位状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// firstString 取第一个非空字段，数字按十进制转成字符串
func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}
