package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var GlobalConfig *Config

// Config 全局配置
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Crypto      CryptoConfig      `mapstructure:"crypto"`
	Log         LogConfig         `mapstructure:"log"`
	Nats        NatsConfig        `mapstructure:"nats"`
	Indexer     IndexerConfig     `mapstructure:"indexer"`
	Git         GitConfig         `mapstructure:"git"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Sweep       SweepConfig       `mapstructure:"sweep"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	Indexing    IndexingConfig    `mapstructure:"indexing"`
	Notify      NotifyConfig      `mapstructure:"notify"`
}

// ServerConfig 管理接口配置
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	LogLevel        string `mapstructure:"log_level"`         // SQL日志级别: silent/error/warn/info
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// AuthConfig 管理接口认证
type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	Issuer            string `mapstructure:"issuer"`
	AccessTokenExpire int    `mapstructure:"access_token_expire"` // 秒
}

// CryptoConfig 加密配置
type CryptoConfig struct {
	AESKey string `mapstructure:"aes_key"` // 32字节, 解密 connection 凭证
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error
	Format   string `mapstructure:"format"` // json, console
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// NatsConfig 事件总线/任务队列
type NatsConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	QueueGroup    string `mapstructure:"queue_group"`
}

// IndexerConfig 外部索引进程
type IndexerConfig struct {
	BinaryPath     string `mapstructure:"binary_path"`
	Timeout        string `mapstructure:"timeout"`         // 单次进程超时, 例如 30m
	PartitionCount int    `mapstructure:"partition_count"` // shard 数
}

// GitConfig 仓库存储
type GitConfig struct {
	// Storages storage 名称 → 本地根目录
	Storages map[string]string `mapstructure:"storages"`
	// 透传给外部索引器的 gitaly 地址与 token
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

// SchedulerConfig 调度
type SchedulerConfig struct {
	Cron string `mapstructure:"cron"` // 调度 tick, 秒级 cron 表达式
}

// WorkerConfig 任务执行
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// EventConcurrency 扫描事件单独的并发数
	EventConcurrency int    `mapstructure:"event_concurrency"`
	LeaseTTL         string `mapstructure:"lease_ttl"`
	LeaseRetries     int    `mapstructure:"lease_retries"`
	LeaseBackoff     string `mapstructure:"lease_backoff"`
	RescheduleDelay  string `mapstructure:"reschedule_delay"`
}

// SweepConfig 资格扫描
type SweepConfig struct {
	Limit            int `mapstructure:"limit"`
	BatchSize        int `mapstructure:"batch_size"`
	InactivityMonths int `mapstructure:"inactivity_months"`
}

// EligibilityConfig 资格规则
type EligibilityConfig struct {
	Mode                       string `mapstructure:"mode"` // saas, instance
	InstanceLicensed           bool   `mapstructure:"instance_licensed"`
	InstanceDuoFeaturesEnabled bool   `mapstructure:"instance_duo_features_enabled"`
}

// IndexingConfig 索引总开关默认值, 运行时可被 settings 表覆盖
type IndexingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// NotifyConfig 失败告警
type NotifyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	LarkWebhookURL string `mapstructure:"lark_webhook_url"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// 读取环境变量
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 设置全局配置
	GlobalConfig = config

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "code-indexer")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.jwt.issuer", "code-indexer")
	v.SetDefault("auth.jwt.access_token_expire", 86400)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "code_indexer")
	v.SetDefault("nats.queue_group", "code-indexer-workers")
	v.SetDefault("indexer.timeout", "30m")
	v.SetDefault("indexer.partition_count", 24)
	v.SetDefault("scheduler.cron", "0 * * * * *")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.event_concurrency", 2)
	v.SetDefault("worker.lease_ttl", "1h")
	v.SetDefault("worker.lease_retries", 3)
	v.SetDefault("worker.lease_backoff", "1s")
	v.SetDefault("worker.reschedule_delay", "1m")
	v.SetDefault("sweep.limit", 1000)
	v.SetDefault("sweep.batch_size", 100)
	v.SetDefault("sweep.inactivity_months", 6)
	v.SetDefault("eligibility.mode", "saas")
}

// GetDSN 获取数据库DSN
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// ParseDuration 解析时长, 为空或非法时使用默认值
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
