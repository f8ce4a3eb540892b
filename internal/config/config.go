package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/moodmic/backend/internal/audio"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Analysis AnalysisConfig
	Capture  CaptureConfig
	AI       AIConfig
	Stub     StubConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig("PORT", "8080")
	if err != nil {
		return nil, err
	}

	capture, err := loadCaptureConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	stub, err := loadServerConfig("STUB_PORT", "8090")
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Analysis: loadAnalysisConfig(),
		Capture:  capture,
		AI:       ai,
		Stub:     StubConfig{Addr: stub.Addr, Transcript: strings.TrimSpace(os.Getenv("STUB_TRANSCRIPT"))},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// StubConfig 描述本地分析服务。Transcript 非空时作为固定的转写文本。
type StubConfig struct {
	Addr       string
	Transcript string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(key, defaultPort string) (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AnalysisConfig 描述远端分析服务。
type AnalysisConfig struct {
	URL   string
	Token string
}

func loadAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		URL: getEnvOrDefault("ANALYSIS_URL", "http://localhost:8090/analyze_audio"),
		// 占位符，不是真实凭证
		Token: getEnvOrDefault("ANALYSIS_TOKEN", "dummy-token"),
	}
}

// WAV 声道模式
const (
	WAVModeMono         = "mono"
	WAVModeCompatStereo = "compat-stereo"
)

// 录音输出格式
const (
	FormatRaw = "raw"
	FormatWAV = "wav"
)

// CaptureConfig 描述录音设备与编码配置。
type CaptureConfig struct {
	Command        []string
	SampleRate     int
	Channels       int
	Format         string
	ChunkBytes     int
	WAVChannelMode string
}

// WAVChannels 返回编码 WAV 头中声明的声道数
func (c CaptureConfig) WAVChannels() int {
	if c.WAVChannelMode == WAVModeCompatStereo {
		return 2
	}
	return 1
}

// NewDevice 按配置创建录音设备
func (c CaptureConfig) NewDevice() audio.Device {
	return &audio.CommandDevice{
		Command:    append([]string(nil), c.Command...),
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		ChunkBytes: c.ChunkBytes,
	}
}

// NewDecoder 返回与录音程序输出格式匹配的解码器
func (c CaptureConfig) NewDecoder() audio.Decoder {
	if c.Format == FormatWAV {
		return audio.WAVDecoder{}
	}
	return audio.RawPCMDecoder{}
}

func loadCaptureConfig() (CaptureConfig, error) {
	sampleRate, err := parseIntEnv("CAPTURE_SAMPLE_RATE", 16000)
	if err != nil {
		return CaptureConfig{}, err
	}
	if sampleRate <= 0 {
		return CaptureConfig{}, fmt.Errorf("invalid CAPTURE_SAMPLE_RATE value %d", sampleRate)
	}

	channels, err := parseIntEnv("CAPTURE_CHANNELS", 1)
	if err != nil {
		return CaptureConfig{}, err
	}
	if channels <= 0 {
		return CaptureConfig{}, fmt.Errorf("invalid CAPTURE_CHANNELS value %d", channels)
	}

	chunkBytes, err := parseIntEnv("CAPTURE_CHUNK_BYTES", 4096)
	if err != nil {
		return CaptureConfig{}, err
	}

	format := strings.ToLower(getEnvOrDefault("CAPTURE_FORMAT", FormatRaw))
	if format != FormatRaw && format != FormatWAV {
		return CaptureConfig{}, fmt.Errorf("invalid CAPTURE_FORMAT value %q (want raw or wav)", format)
	}

	mode := strings.ToLower(getEnvOrDefault("WAV_CHANNEL_MODE", WAVModeMono))
	if mode != WAVModeMono && mode != WAVModeCompatStereo {
		return CaptureConfig{}, fmt.Errorf("invalid WAV_CHANNEL_MODE value %q (want mono or compat-stereo)", mode)
	}

	command := strings.Fields(os.Getenv("CAPTURE_COMMAND"))
	if len(command) == 0 {
		// 默认使用 ALSA 的 arecord 输出裸 PCM
		command = []string{"arecord", "-q", "-t", format, "-f", "S16_LE",
			"-c", strconv.Itoa(channels), "-r", strconv.Itoa(sampleRate)}
	}

	return CaptureConfig{
		Command:        command,
		SampleRate:     sampleRate,
		Channels:       channels,
		Format:         format,
		ChunkBytes:     chunkBytes,
		WAVChannelMode: mode,
	}, nil
}

// AIConfig 描述大模型相关配置，仅本地分析服务使用。
type AIConfig struct {
	APIKey            string
	AccessKey         string
	SecretKey         string
	Model             string
	BaseURL           string
	Region            string
	Temperature       *float64
	TopP              *float64
	MaxTokens         *int
	EmotionLLMEnabled bool
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

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
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

	emotionEnabled, err := parseBoolEnv("AI_EMOTION_LLM_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:            strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:         strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:         strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:             strings.TrimSpace(os.Getenv("Model")),
		BaseURL:           getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:            getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:       temperature,
		TopP:              topP,
		MaxTokens:         maxTokens,
		EmotionLLMEnabled: emotionEnabled,
	}, nil
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

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
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
