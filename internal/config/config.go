package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Topology  TopologyConfig  `yaml:"topology" mapstructure:"topology"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Alert     AlertConfig     `yaml:"alert" mapstructure:"alert"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Delivery  DeliveryConfig  `yaml:"delivery" mapstructure:"delivery"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// TopologyConfig points at the reference documents describing markets,
// appliances and accounts.
type TopologyConfig struct {
	CorvilPath      string `yaml:"corvil_path" mapstructure:"corvil_path"`
	MarketDBPath    string `yaml:"market_db_path" mapstructure:"market_db_path"`
	AccountsPath    string `yaml:"accounts_path" mapstructure:"accounts_path"`
	ConnectionsPath string `yaml:"connections_path" mapstructure:"connections_path"`
}

// RetrievalConfig configures the external streaming client and its filter.
type RetrievalConfig struct {
	Program       string        `yaml:"program" mapstructure:"program"`
	Script        string        `yaml:"script" mapstructure:"script"`
	FilterPath    string        `yaml:"filter_path" mapstructure:"filter_path"`
	Environment   string        `yaml:"environment" mapstructure:"environment"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CanaryTimeout time.Duration `yaml:"canary_timeout" mapstructure:"canary_timeout"`
}

// ExtractConfig configures artifact placement and manifest policy.
type ExtractConfig struct {
	OutputDir        string `yaml:"output_dir" mapstructure:"output_dir"`
	MinArtifactBytes int64  `yaml:"min_artifact_bytes" mapstructure:"min_artifact_bytes"`
	ManifestScope    string `yaml:"manifest_scope" mapstructure:"manifest_scope"`
	Lock             bool   `yaml:"lock" mapstructure:"lock"`
}

// AlertConfig configures schema-mismatch alerts.
type AlertConfig struct {
	SMTPAddr   string `yaml:"smtp_addr" mapstructure:"smtp_addr"`
	From       string `yaml:"from" mapstructure:"from"`
	To         string `yaml:"to" mapstructure:"to"`
	Subject    string `yaml:"subject" mapstructure:"subject"`
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DeliveryConfig configures where finished artifacts are shipped.
type DeliveryConfig struct {
	Driver string    `yaml:"driver" mapstructure:"driver"`
	FTP    FTPConfig `yaml:"ftp" mapstructure:"ftp"`
	S3     S3Config  `yaml:"s3" mapstructure:"s3"`
}

// FTPConfig holds FTP drop settings.
type FTPConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	User     string        `yaml:"user" mapstructure:"user"`
	Password string        `yaml:"password" mapstructure:"password"`
	Dir      string        `yaml:"dir" mapstructure:"dir"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// S3Config holds S3-compatible object store settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// NotifyConfig configures manifest-ready notifications.
type NotifyConfig struct {
	AMQPURL    string `yaml:"amqp_url" mapstructure:"amqp_url"`
	Exchange   string `yaml:"exchange" mapstructure:"exchange"`
	RoutingKey string `yaml:"routing_key" mapstructure:"routing_key"`
}

// MetricsConfig configures the Prometheus push gateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	Job            string `yaml:"job" mapstructure:"job"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CORVIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("topology.corvil_path", "../../Configurations/ref_corvil.yaml")
	v.SetDefault("topology.market_db_path", "../../Configurations/ref_market_db.yaml")
	v.SetDefault("topology.accounts_path", "../../Configurations/ref_accounts.yaml")
	v.SetDefault("topology.connections_path", "../../Configurations/ref_connections.yaml")
	v.SetDefault("retrieval.program", "python")
	v.SetDefault("retrieval.script", "./CorvilApiStreamingClient.py")
	v.SetDefault("retrieval.filter_path", "./csv-comma2soh")
	v.SetDefault("retrieval.environment", "prod")
	v.SetDefault("retrieval.timeout", 6*time.Hour)
	v.SetDefault("retrieval.canary_timeout", 5*time.Minute)
	v.SetDefault("extract.output_dir", ".")
	v.SetDefault("extract.min_artifact_bytes", 5000)
	v.SetDefault("extract.manifest_scope", "run")
	v.SetDefault("extract.lock", true)
	v.SetDefault("alert.smtp_addr", "localhost:25")
	v.SetDefault("alert.from", "CPM-US@theice.com")
	v.SetDefault("alert.to", "CPM-US@theice.com")
	v.SetDefault("alert.subject", "CORVIL EXTRACT ERROR")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "corvil_extract.db")
	v.SetDefault("delivery.driver", "none")
	v.SetDefault("delivery.ftp.timeout", 30*time.Second)
	v.SetDefault("notify.routing_key", "corvil.extract.manifest")
	v.SetDefault("metrics.job", "corvil_extract")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by the given command mode
// ("list", "extract", "runs" or "serve") and returns every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "list":
	case "extract":
		if c.Retrieval.Program == "" {
			errs = append(errs, "retrieval.program is required")
		}
		if c.Retrieval.Environment == "" {
			errs = append(errs, "retrieval.environment is required")
		}
		if c.Retrieval.Timeout <= 0 || c.Retrieval.CanaryTimeout <= 0 {
			errs = append(errs, "retrieval timeouts must be > 0")
		}
		if c.Extract.MinArtifactBytes < 0 {
			errs = append(errs, "extract.min_artifact_bytes must be >= 0")
		}
		switch c.Extract.ManifestScope {
		case "run", "prefix":
		default:
			errs = append(errs, fmt.Sprintf("extract.manifest_scope must be run or prefix, got %q", c.Extract.ManifestScope))
		}
		switch c.Delivery.Driver {
		case "none", "":
		case "ftp":
			if c.Delivery.FTP.Addr == "" {
				errs = append(errs, "delivery.ftp.addr is required")
			}
		case "s3":
			if c.Delivery.S3.Endpoint == "" || c.Delivery.S3.Bucket == "" {
				errs = append(errs, "delivery.s3.endpoint and delivery.s3.bucket are required")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown delivery.driver %q", c.Delivery.Driver))
		}
	case "runs":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Store.Driver != "none" && c.Store.DatabaseURL == "" && (mode == "extract" || mode == "runs" || mode == "serve") {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
