package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

var IS_PROD = strings.EqualFold(os.Getenv("APP_ENV"), "production")

// Settings is everything that can differ between deployments.
type Settings struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string //json or text

	AuthToken    string
	NoAuthBypass bool
	TrustProxy   bool //take the client address from proxy headers

	StoreBackend  string //redis, sql or memory
	RedisAddr     string
	RedisPassword string
	DatabaseURL   string

	LLMProvider   string //openai or gemini
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	MockAI        bool

	MaxWorkers    int
	AIConcurrency int64
	OCRThreshold  float64
	OCREngine     string //tesseract or gosseract
	PdftoppmPath  string
	TesseractPath string
	MaxFileSizeMB int
	TempDir       string
}

var (
	settings     Settings
	settingsOnce sync.Once
)

// Get returns the process wide settings, loaded from the environment on first use.
func Get() Settings {
	settingsOnce.Do(func() {
		settings = Load()
	})
	return settings
}

func Load() Settings {
	s := Settings{
		ListenAddr:    getEnv("LISTEN_ADDR", ServerListenAddr),
		LogLevel:      getEnv("LOG_LEVEL", ""),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "")),
		AuthToken:     getEnv("API_AUTH_TOKEN", ""),
		NoAuthBypass:  getEnvAsBool("AUTH_BYPASS", false),
		TrustProxy:    getEnvAsBool("TRUST_PROXY", false),
		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "redis")),
		RedisAddr:     getEnv("REDIS_ADDR", RedisAddr),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", DefaultOpenAIModel),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", DefaultGeminiModel),
		MockAI:        getEnvAsBool("MOCK_AI", false),
		MaxWorkers:    getEnvAsInt("MAX_WORKERS", defaultMaxWorkers),
		AIConcurrency: int64(getEnvAsInt("AI_CONCURRENCY", defaultAIConcurrency)),
		OCRThreshold:  getEnvAsFloat("OCR_CONFIDENCE_THRESHOLD", defaultOCRThreshold),
		OCREngine:     strings.ToLower(getEnv("OCR_ENGINE", "tesseract")),
		PdftoppmPath:  getEnv("PDFTOPPM_PATH", "pdftoppm"),
		TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
		MaxFileSizeMB: getEnvAsInt("MAX_FILE_SIZE_MB", defaultMaxFileSizeMB),
		TempDir:       getEnv("TEMP_DIR", os.TempDir()),
	}
	if s.MaxWorkers < 1 {
		s.MaxWorkers = 1
	}
	if s.AIConcurrency < 1 {
		s.AIConcurrency = 1
	}
	return s
}

// MaxFileSizeBytes is the per-file upload ceiling.
func (s Settings) MaxFileSizeBytes() int64 {
	return int64(s.MaxFileSizeMB) << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
