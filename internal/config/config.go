package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Scheduler SchedulerConfig
	Store     StoreConfig
	Notify    NotifyConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	scheduler, err := loadSchedulerConfig()
	if err != nil {
		return nil, err
	}

	notify, err := parseBoolEnv("NOTIFY_ENABLED", true)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Scheduler: scheduler,
		Store:     StoreConfig{Path: getEnvOrDefault("DB_PATH", "fluffie.db")},
		Notify:    NotifyConfig{Enabled: notify},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// SchedulerConfig 描述自主活动调度的全局配置与各项默认值。
type SchedulerConfig struct {
	TickSpec string // robfig/cron 调度表达式
	Enabled  bool   // 主动消息全局开关的初始值

	// 新建角色的默认档位。
	DefaultIntervalMinutes      int
	DefaultCooldownMinutes      int
	DefaultDailyLimit           int
	DefaultIdleThresholdMinutes int
	DefaultPostIntervalMinutes  int
	DefaultPostDailyLimit       int

	// 概率闸门，可被测试注入覆盖。
	PostChance       float64 // 发朋友圈的每分钟触发概率
	ReactPublic      float64 // 公开帖子的围观概率
	ReactRestricted  float64 // 部分可见且在名单内的围观概率
	SweepReactChance float64 // 周期巡查补充互动的概率
}

func loadSchedulerConfig() (SchedulerConfig, error) {
	enabled, err := parseBoolEnv("ACTIVITY_ENABLED", true)
	if err != nil {
		return SchedulerConfig{}, err
	}

	cfg := SchedulerConfig{
		TickSpec:                    getEnvOrDefault("SCHEDULER_TICK", "@every 1m"),
		Enabled:                     enabled,
		DefaultIntervalMinutes:      60,
		DefaultCooldownMinutes:      30,
		DefaultDailyLimit:           10,
		DefaultIdleThresholdMinutes: 120,
		DefaultPostIntervalMinutes:  240,
		DefaultPostDailyLimit:       3,
		PostChance:                  0.01,
		ReactPublic:                 0.6,
		ReactRestricted:             0.8,
		SweepReactChance:            0.3,
	}

	if v, err := parseOptionalIntEnv("SCHEDULER_DAILY_LIMIT"); err != nil {
		return SchedulerConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.DefaultDailyLimit = *v
	}

	if v, err := parseOptionalIntEnv("SCHEDULER_INTERVAL_MINUTES"); err != nil {
		return SchedulerConfig{}, err
	} else if v != nil && *v > 0 {
		cfg.DefaultIntervalMinutes = *v
	}

	return cfg, nil
}

// StoreConfig 描述持久化层配置。
type StoreConfig struct {
	Path string
}

// NotifyConfig 描述桌面通知配置。
type NotifyConfig struct {
	Enabled bool
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
