// =============================================================================
// 📦 TaskFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:     DefaultEngineConfig(),
		Executor:   DefaultExecutorConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Validator:  DefaultValidatorConfig(),
		Routing:    DefaultRoutingConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Mongo:      DefaultMongoConfig(),
		Log:        DefaultLogConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Name:          "taskflow",
		Router:        "workflow",
		MaxIterations: 50,
		Timeout:       10 * time.Minute,
		MaxParallel:   4,
	}
}

// DefaultExecutorConfig 返回默认执行器配置
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Backend:        "memory",
		MinInterval:    30 * time.Second,
		MemoryCapacity: 50,
		SQLitePath:     "taskflow.db",
		RedisPrefix:    "taskflow",
	}
}

// DefaultValidatorConfig 返回默认校验配置
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxRetries:  3,
		MaxMessages: 1000,
		MaxElapsed:  30 * time.Minute,
	}
}

// DefaultRoutingConfig 返回默认路由配置
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		HistorySize:         100,
		ConfidenceThreshold: 0.6,
		QualityThreshold:    0.7,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "taskflow",
		Name:            "taskflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "taskflow",
		Collection:     "workflow_checkpoints",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "taskflow",
	}
}
