package common

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	Log      LogConfig
}

// ServerConfig holds HTTP and gRPC health server configuration
type ServerConfig struct {
	Port            int
	StaticDir       string
	UploadDir       string
	MaxUploadBytes  int64
	GRPCHealthAddr  string
	ShutdownTimeout time.Duration
}

// OCRConfig holds recognition-related configuration
type OCRConfig struct {
	Backend     string
	APIURL      string
	Languages   []string
	Concurrency int
	Timeout     time.Duration
	RateLimit   float64
	RenderDPI   int
	Pdftoppm    string
	Pdftotext   string
	Tesseract   string
	TessdataDir string
}

// LLMConfig holds rule-checking model configuration
type LLMConfig struct {
	Provider        string
	Model           string
	APIKey          string
	BaseURL         string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	Timeout         time.Duration
}

// PipelineConfig holds document pipeline configuration
type PipelineConfig struct {
	TextThreshold int
	Workers       int
	QueueSize     int
	Timeout       time.Duration
	CleanupDelay  time.Duration
	MaxRules      int
}

// CacheConfig holds recognition cache configuration
type CacheConfig struct {
	Backend string
	DSN     string
	TTL     time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every configuration key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("static_dir", "public")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("max_upload_bytes", constants.MaxUploadBytes)
	v.SetDefault("grpc_health_addr", "")
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("ocr_backend", "http")
	v.SetDefault("tesseract_api_url", "")
	v.SetDefault("ocr_languages", "eng")
	v.SetDefault("concurrent_ocr", 3)
	v.SetDefault("ocr_timeout", 120*time.Second)
	v.SetDefault("ocr_rate_limit", 0.0)
	v.SetDefault("render_dpi", 144)
	v.SetDefault("pdftoppm", "pdftoppm")
	v.SetDefault("pdftotext", "pdftotext")
	v.SetDefault("tesseract", "tesseract")
	v.SetDefault("tessdata_prefix", "")

	v.SetDefault("llm_provider", "gemini")
	v.SetDefault("llm_model", "")
	v.SetDefault("llm_base_url", "")
	v.SetDefault("llm_temperature", 0.1)
	v.SetDefault("llm_top_p", 0.8)
	v.SetDefault("llm_max_output_tokens", 512)
	v.SetDefault("llm_timeout", 60*time.Second)

	v.SetDefault("text_threshold", 150)
	v.SetDefault("pipeline_workers", 4)
	v.SetDefault("pipeline_queue_size", 256)
	v.SetDefault("pipeline_timeout", time.Duration(0))
	v.SetDefault("cleanup_delay", 5*time.Second)
	v.SetDefault("max_rules", 20)

	v.SetDefault("cache_backend", "memory")
	v.SetDefault("cache_dsn", "")
	v.SetDefault("cache_ttl", 24*time.Hour)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// NewViper returns a viper instance wired to defaults, the optional config
// file and the environment. A .env file in the working directory is loaded
// into the process environment first when present.
func NewViper(configFile string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError("CONFIG_ERROR", "failed to load .env", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	_ = v.BindEnv("llm_api_key", "LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pdf-analyzer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pdf-analyzer"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, NewAppError("CONFIG_ERROR", "failed to read config file", err)
		}
	}
	return v, nil
}

// LoadConfig loads configuration from defaults, config file and environment
func LoadConfig() (*Config, error) {
	v, err := NewViper("")
	if err != nil {
		return nil, err
	}
	return FromViper(v), nil
}

// FromViper materializes a Config from an already prepared viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetInt("port"),
			StaticDir:       v.GetString("static_dir"),
			UploadDir:       v.GetString("upload_dir"),
			MaxUploadBytes:  v.GetInt64("max_upload_bytes"),
			GRPCHealthAddr:  v.GetString("grpc_health_addr"),
			ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		},
		OCR: OCRConfig{
			Backend:     strings.ToLower(v.GetString("ocr_backend")),
			APIURL:      v.GetString("tesseract_api_url"),
			Languages:   splitList(v.GetString("ocr_languages")),
			Concurrency: v.GetInt("concurrent_ocr"),
			Timeout:     v.GetDuration("ocr_timeout"),
			RateLimit:   v.GetFloat64("ocr_rate_limit"),
			RenderDPI:   v.GetInt("render_dpi"),
			Pdftoppm:    v.GetString("pdftoppm"),
			Pdftotext:   v.GetString("pdftotext"),
			Tesseract:   v.GetString("tesseract"),
			TessdataDir: v.GetString("tessdata_prefix"),
		},
		LLM: LLMConfig{
			Provider:        strings.ToLower(v.GetString("llm_provider")),
			Model:           v.GetString("llm_model"),
			APIKey:          v.GetString("llm_api_key"),
			BaseURL:         v.GetString("llm_base_url"),
			Temperature:     float32(v.GetFloat64("llm_temperature")),
			TopP:            float32(v.GetFloat64("llm_top_p")),
			MaxOutputTokens: v.GetInt("llm_max_output_tokens"),
			Timeout:         v.GetDuration("llm_timeout"),
		},
		Pipeline: PipelineConfig{
			TextThreshold: v.GetInt("text_threshold"),
			Workers:       v.GetInt("pipeline_workers"),
			QueueSize:     v.GetInt("pipeline_queue_size"),
			Timeout:       v.GetDuration("pipeline_timeout"),
			CleanupDelay:  v.GetDuration("cleanup_delay"),
			MaxRules:      v.GetInt("max_rules"),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(v.GetString("cache_backend")),
			DSN:     v.GetString("cache_dsn"),
			TTL:     v.GetDuration("cache_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LLM_API_KEY (or GEMINI_API_KEY / OPENAI_API_KEY) is required", ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return NewAppError("CONFIG_ERROR", "LLM_PROVIDER must be gemini or openai", ErrInvalidInput)
	}
	switch c.OCR.Backend {
	case "http":
		if c.OCR.APIURL == "" {
			return NewAppError("CONFIG_ERROR", "TESSERACT_API_URL is required when OCR_BACKEND=http", ErrInvalidInput)
		}
	case "tesseract", "gosseract":
	default:
		return NewAppError("CONFIG_ERROR", "OCR_BACKEND must be http, tesseract or gosseract", ErrInvalidInput)
	}
	if c.OCR.Concurrency <= 0 {
		return NewAppError("CONFIG_ERROR", "CONCURRENT_OCR must be positive", ErrInvalidInput)
	}
	if c.OCR.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be positive", ErrInvalidInput)
	}
	switch c.Cache.Backend {
	case "none", "memory":
	case "sqlite", "postgres", "redis":
		if c.Cache.DSN == "" && c.Cache.Backend != "sqlite" {
			return NewAppError("CONFIG_ERROR", "CACHE_DSN is required for cache backend "+c.Cache.Backend, ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unknown CACHE_BACKEND "+c.Cache.Backend, ErrInvalidInput)
	}
	return nil
}
