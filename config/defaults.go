// =============================================================================
// 📦 MeshFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Fetch:     DefaultFetchConfig(),
		Convert:   DefaultConvertConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8001,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConns:        0,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		CORSAllowedOrigins: []string{
			"http://localhost:3000",
		},
		APIKeys:          nil,
		AllowQueryAPIKey: false,
		TLSCertFile:      "",
		TLSKeyFile:       "",
		JWT: JWTConfig{
			Enabled: false,
		},
	}
}

// DefaultFetchConfig 返回默认下载配置
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:    30 * time.Second,
		MaxBytes:   64 << 20, // 64 MB
		UserAgent:  "meshflow/1.0",
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// DefaultConvertConfig 返回默认转换配置
func DefaultConvertConfig() ConvertConfig {
	return ConvertConfig{
		Workers:      4,
		MaxBatch:     16,
		CacheEnabled: true,
		CacheTTL:     time.Hour,
		HistoryLimit: 50,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "meshflow",
		Password:        "",
		Name:            "meshflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
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

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "meshflow",
		SampleRate:   0.1,
	}
}
