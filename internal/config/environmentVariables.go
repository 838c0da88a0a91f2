package config

import (
	"log/slog"
	"time"
)

const (
	LOG_LEVEL_PROD              = slog.LevelInfo
	FALLBACK_REDIS_TO_INMEMORY  = true //if redis init fails, it falls back to an internal in-memory store
	TRACE_ID_KEY                = "traceId"
	RATE_LIMIT_PER_SECOND       = 2
	BURST_RATE_LIMIT_PER_SECOND = 5

	//batch queue workers, not to be confused with the per-batch document pool
	RequestsPerNewWorkerCount int64 = 2
	MaxWorkerCount            int64 = 4
	MinWorkerCount            int64 = 1
	IdleWorkerTimeout               = 1 * time.Minute

	//serverTimeouts
	ReadTimeout            = 60 * time.Second //uploads can carry many 50MB files
	ReadHeaderTimeout      = 10 * time.Second
	MaxHeaderBytes         = 1 << 20
	WriteTimeout           = 60 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second
	WorkerDrainTimeout     = 5 * time.Minute //a running batch gets this long to finish on shutdown

	//server listening port
	ServerListenAddr = ":3000"

	//batch requests buffer limit
	BufferLimit = 100

	BatchTimeout    = 2 * time.Hour
	DocumentTimeout = 15 * time.Minute

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second
	LLMRequestTimeout   = 120 * time.Second

	//redis
	redisHost = "127.0.0.1"
	redisPort = "6379"
	RedisAddr = redisHost + ":" + redisPort

	//redis has 16 DB we can use
	RedisJobStore = 0

	RedisJobStoreTTL = 24 * time.Hour

	//page classification
	TextMinChars  = 100
	GraphMaxChars = 200
	RenderDPI     = 200

	PageTextTimeout = 10 * time.Second

	//chunking
	ImageChunkSize = 3
	TextChunkSize  = 4

	//remote extraction
	AIMaxRetries                 = 1
	LLMMaxTokens                 = 4096
	DefaultOpenAIModel           = "gpt-4o"
	DefaultGeminiModel           = "gemini-2.5-flash"
	InputCostPerMillion  float64 = 2.5
	OutputCostPerMillion float64 = 10.0

	//defaults for values overridable from the environment
	defaultMaxWorkers    = 10
	defaultAIConcurrency = 10
	defaultOCRThreshold  = 0.7
	defaultMaxFileSizeMB = 50

	ExcelFilePrefix = "medical_reports_"
	ExcelTimeLayout = "20060102_150405"
)
