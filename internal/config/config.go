// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Configuration holds all settings for the service.
type Configuration struct {
	Service       ServiceConfig
	Pipeline      PipelineConfig
	Backends      BackendsConfig
	Kafka         KafkaConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the service and its listen ports.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
}

// PipelineConfig controls segmentation, concurrency and merge behavior.
type PipelineConfig struct {
	ChunkSeconds        float64       `validate:"gt=0"`
	OverlapSeconds      float64       `validate:"gte=0,ltfield=ChunkSeconds"`
	MaxConcurrentChunks int           `validate:"gte=1"`
	PerChunkTimeout     time.Duration `validate:"gt=0"`
	SimilarityThreshold float64       `validate:"gte=0,lte=1"`
	RedactPII           bool
	MaxUploadBytes      int64 `validate:"gt=0"`
}

// BackendsConfig holds per-provider settings and the fallback order.
type BackendsConfig struct {
	Priority   []string `validate:"min=1"`
	OpenAI     OpenAIConfig
	AssemblyAI AssemblyAIConfig
	Google     GoogleConfig
}

// OpenAIConfig configures the hosted primary backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AssemblyAIConfig configures the hosted secondary backend.
type AssemblyAIConfig struct {
	APIKey  string
	BaseURL string
}

// GoogleConfig configures the optional Google Cloud Speech backend.
// Requires GOOGLE_APPLICATION_CREDENTIALS when enabled.
type GoogleConfig struct {
	Enabled       bool
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
}

// KafkaConfig configures the progress/completed event publisher.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicProgress  string
	TopicCompleted string
	Principal      string
}

// StorageConfig locates the on-disk run store.
type StorageConfig struct {
	DataDir string
}

// ObservabilityConfig controls logging and the metrics server.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

var validate = validator.New()

// Load reads configuration from the environment, falling back to defaults
// for unset or unparsable values. A .env file is honored when present.
func Load() *Configuration {
	_ = godotenv.Load()

	cfg := &Configuration{
		Service: ServiceConfig{
			Principal: envOrDefault("SERVICE_PRINCIPAL", "svc-meeting-transcripts"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		Pipeline: PipelineConfig{
			ChunkSeconds:        envOrDefaultFloat("PIPELINE_CHUNK_SECONDS", 300),
			OverlapSeconds:      envOrDefaultFloat("PIPELINE_OVERLAP_SECONDS", 0),
			MaxConcurrentChunks: envOrDefaultInt("PIPELINE_MAX_CONCURRENT_CHUNKS", 1),
			PerChunkTimeout:     envOrDefaultDuration("PIPELINE_CHUNK_TIMEOUT", 2*time.Minute),
			SimilarityThreshold: envOrDefaultFloat("PIPELINE_SIMILARITY_THRESHOLD", 0.8),
			RedactPII:           envOrDefaultBool("PIPELINE_REDACT_PII", false),
			MaxUploadBytes:      envOrDefaultInt64("PIPELINE_MAX_UPLOAD_BYTES", 512*1024*1024),
		},
		Backends: BackendsConfig{
			Priority: envOrDefaultList("BACKEND_PRIORITY", []string{"openai", "assemblyai", "local"}),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
				Model:   envOrDefault("OPENAI_MODEL", "whisper-1"),
			},
			AssemblyAI: AssemblyAIConfig{
				APIKey:  os.Getenv("ASSEMBLYAI_API_KEY"),
				BaseURL: envOrDefault("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com"),
			},
			Google: GoogleConfig{
				Enabled:       envOrDefaultBool("GOOGLE_STT_ENABLED", false),
				LanguageCode:  envOrDefault("GOOGLE_STT_LANGUAGE_CODE", "en-US"),
				SampleRateHz:  envOrDefaultInt("GOOGLE_STT_SAMPLE_RATE_HZ", 16000),
				AudioEncoding: envOrDefault("GOOGLE_STT_AUDIO_ENCODING", "LINEAR16"),
			},
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        envOrDefaultList("KAFKA_BROKERS", nil),
			TopicProgress:  envOrDefault("KAFKA_TOPIC_PROGRESS", "transcription.chunk.progress"),
			TopicCompleted: envOrDefault("KAFKA_TOPIC_COMPLETED", "transcription.run.completed"),
			Principal:      os.Getenv("KAFKA_PRINCIPAL"),
		},
		Storage: StorageConfig{
			DataDir: envOrDefault("STORAGE_DIR", "./data"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}

	// Kafka principal falls back to the service principal
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	return cfg
}

// Validate checks structural constraints on the loaded configuration.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c.Pipeline); err != nil {
		return err
	}
	return validate.Struct(c.Backends)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated value, trimming whitespace.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
