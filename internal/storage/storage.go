package storage

import (
	"context"
	"errors"
	"fmt"

	"match-engine-go/internal/config"
	"match-engine-go/internal/logger"
)

// ErrNotFound 记录或键不存在
var ErrNotFound = errors.New("storage: not found")

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 关系型数据库，必需
	MySQL *MySQL

	// 匹配结果快速层，可选
	Redis *Redis

	// 消息队列，可选；缺失时发件箱消息留在表中等待下次启动
	RabbitMQ *RabbitMQ
}

// NewStorage 初始化存储；MySQL 失败返回错误，Redis/RabbitMQ 失败只记录警告
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var err error

	s.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化Redis失败，匹配结果将只使用持久层")
		}
	} else {
		logger.Info().Msg("Redis未配置, 跳过初始化")
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(ctx, &cfg.RabbitMQ)
		if err == nil {
			err = s.RabbitMQ.DeclareTopology()
		}
		if err != nil {
			logger.Warn().Err(err).Msg("初始化RabbitMQ失败，档案变更事件暂不投递")
			if s.RabbitMQ != nil {
				s.RabbitMQ.Close()
				s.RabbitMQ = nil
			}
		}
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
}
