package domain

import "time"

// Config holds the complete system configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Detection defaults, overridable per request
	Detection DetectionConfig `json:"detection"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// DetectionConfig carries the default thresholds of the detector suite.
type DetectionConfig struct {
	// Temporal burst detector
	BurstWindowHours int      `json:"burstWindowHours"`
	BurstThreshold   int      `json:"burstThreshold"`
	BurstAmountMax   float64  `json:"burstAmountMax"`
	BurstChannels    []string `json:"burstChannels"`

	// Mirror-match graph builder
	MirrorToleranceHours float64 `json:"mirrorToleranceHours"`

	// Account-lifetime detector
	LifetimeMonthsMax float64 `json:"lifetimeMonthsMax"`

	// Text mining
	TextMinClients int      `json:"textMinClients"`
	TextTopN       int      `json:"textTopN"`
	TextExclusions []string `json:"textExclusions"`

	// Pass-through and bridge accounts
	PassMatchRatio    float64 `json:"passMatchRatio"`
	PassMinInflow     float64 `json:"passMinInflow"`
	BridgeNetMax      float64 `json:"bridgeNetMax"`
	BridgeTurnoverMin float64 `json:"bridgeTurnoverMin"`

	// Segment volume and digital smurfing
	SegmentMinAmount float64 `json:"segmentMinAmount"`
	SmurfAmountMax   float64 `json:"smurfAmountMax"`
	SmurfFlagCount   int     `json:"smurfFlagCount"`

	// ATM runs
	ATMMinOps int `json:"atmMinOps"`

	// Keyword screening
	Keywords         []string `json:"keywords"`
	ActivityPatterns []string `json:"activityPatterns"`

	// Geographic hotspots
	Hotspots []string `json:"hotspots"`

	// Aggregations
	TopN int `json:"topN"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + local LRU.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:        "sqlite",
			SQLitePath:    "./aml.db",
			LoadChunkSize: 5000,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Detection: DefaultDetectionConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "aml-system",
		},
	}
}

// DefaultDetectionConfig returns the detector thresholds matching the
// analyst defaults; every one of them is overridable per analysis request.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		BurstWindowHours:     2,
		BurstThreshold:       10,
		BurstAmountMax:       3000,
		BurstChannels:        []string{"CAJEROS AUTOMATICOS", "AGENTE", "YAPE"},
		MirrorToleranceHours: 1,
		LifetimeMonthsMax:    6,
		TextMinClients:       2,
		TextTopN:             30,
		TextExclusions:       []string{"PAGO", "TRANSFERENCIA", "EFECTIVO", "RETIRO", "DEPOSITO"},
		PassMatchRatio:       0.8,
		PassMinInflow:        1000,
		BridgeNetMax:         100,
		BridgeTurnoverMin:    5000,
		SegmentMinAmount:     5000,
		SmurfAmountMax:       500,
		SmurfFlagCount:       50,
		ATMMinOps:            5,
		Keywords:             []string{"FERREYROS", "VOLVO", "SCANIA", "KOMATSU", "MAQUINARIA", "CATERPILLAR"},
		ActivityPatterns:     []string{"TRANSP", "CONSTRUC"},
		Hotspots:             []string{"MADRE", "PUNO", "JULIACA", "TACNA", "TRUJILLO", "CUSCO"},
		TopN:                 10,
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:        "postgres",
		PostgresHost:  "localhost",
		PostgresPort:  5432,
		PostgresDB:    "aml",
		LoadChunkSize: 5000,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
