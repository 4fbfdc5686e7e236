package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Engine holds the decision-engine thresholds and policies. Every field is
// named, defaulted and validated; there are no dynamic option maps.
type Engine struct {
	Symbol    string `yaml:"symbol" validate:"required"`
	Timeframe string `yaml:"timeframe" default:"5m" validate:"oneof=1m 5m 15m 1h 4h"`

	// Arms competing for selection. Empty set is fatal at startup.
	Arms []string `yaml:"arms" validate:"min=1,dive,oneof=pros amateurs model_meta model_bma"`

	// Cold-start prior for unpulled arms and the RNG seed for selection.
	PriorMu    float64 `yaml:"prior_mu" default:"0.0"`
	PriorSigma float64 `yaml:"prior_sigma" default:"25.0" validate:"gt=0"`
	Seed       int64   `yaml:"seed" default:"1"`

	// Gate thresholds.
	SMin             float64 `yaml:"s_min" default:"0.25" validate:"gte=0,lte=1"`
	MMin             float64 `yaml:"m_min" default:"0.15" validate:"gte=0,lte=1"`
	ConfMin          float64 `yaml:"conf_min" default:"0.55" validate:"gte=0,lte=1"`
	AlphaMin         float64 `yaml:"alpha_min" default:"0.05" validate:"gte=0,lte=1"`
	BandBps          float64 `yaml:"band_bps" default:"10" validate:"gte=0"`
	RequireConsensus bool    `yaml:"require_consensus" default:"false"`

	// Overlay-conflict policy: conflicts stronger than the veto band veto
	// the bar, weaker conflicts dampen alpha by the multiplier.
	OverlayVetoBand     float64 `yaml:"overlay_veto_band" default:"0.5" validate:"gte=0,lte=1"`
	OverlayConflictMult float64 `yaml:"overlay_conflict_mult" default:"0.5" validate:"gt=0,lte=1"`

	// Calibration line pred_cal_bps = a + b*raw.
	CalibA float64 `yaml:"calib_a" default:"0"`
	CalibB float64 `yaml:"calib_b" default:"120"`

	// Cost model.
	FeeBps          float64 `yaml:"fee_bps" default:"4" validate:"gte=0"`
	SlippageBps     float64 `yaml:"slippage_bps" default:"2" validate:"gte=0"`
	ImpactK         float64 `yaml:"impact_k" default:"0.8" validate:"gte=0"`
	SafetyBufferBps float64 `yaml:"safety_buffer_bps" default:"3" validate:"gte=0"`

	// Risk guards.
	SpreadCapBps   float64       `yaml:"spread_cap_bps" default:"20" validate:"gt=0"`
	VolMin         float64       `yaml:"vol_min" default:"0"`
	VolMax         float64       `yaml:"vol_max" default:"5.0" validate:"gt=0"`
	LiquidityMin   float64       `yaml:"liquidity_min" default:"0.2" validate:"gte=0,lte=1"`
	MaxDataAge     time.Duration `yaml:"max_data_age" default:"30s" validate:"gt=0"`
	MaxFundingAge  time.Duration `yaml:"max_funding_age" default:"10m" validate:"gt=0"`
	DailyStopDDPct float64       `yaml:"daily_stop_dd_pct" default:"2.0" validate:"gt=0"`
	EquityUSD      float64       `yaml:"equity_usd" default:"10000" validate:"gt=0"`
	CooldownBars   int64         `yaml:"cooldown_bars" default:"3" validate:"gte=0"`
	MaxPositionUSD float64       `yaml:"max_position_usd" default:"2000" validate:"gt=0"`

	// Orchestration.
	CycleBudget       time.Duration `yaml:"cycle_budget" default:"2s" validate:"gt=0"`
	RewardTimeoutBars int64         `yaml:"reward_timeout_bars" default:"3" validate:"gte=1"`
	DailyResetCron    string        `yaml:"daily_reset_cron" default:"0 0 * * *"`
	ExecRetries       int           `yaml:"exec_retries" default:"3" validate:"gte=0,lte=10"`
	ExecBackoffMin    time.Duration `yaml:"exec_backoff_min" default:"100ms" validate:"gt=0"`
	ExecBackoffMax    time.Duration `yaml:"exec_backoff_max" default:"2s" validate:"gt=0"`
}

// DailyCapUSD derives the daily loss cap from the stop percentage.
func (e *Engine) DailyCapUSD() float64 {
	return e.EquityUSD * e.DailyStopDDPct / 100.0
}

// Config is the full application configuration.
type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"oneof=dev staging prod"`
	Instance    string `yaml:"instance" validate:"required"`

	Engine Engine `yaml:"engine"`

	Logger struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`

	State struct {
		BanditPath string `yaml:"bandit_path" default:"state/bandit.json"`
		BudgetPath string `yaml:"budget_path" default:"state/budget.json"`
	} `yaml:"state"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps" default:"20" validate:"gte=0"`
	} `yaml:"server"`

	Kafka struct {
		Brokers       []string `yaml:"brokers" validate:"min=1"`
		SnapshotTopic string   `yaml:"snapshot_topic" default:"barpilot.snapshots"`
		DecisionTopic string   `yaml:"decision_topic" default:"barpilot.decisions"`
		AlertTopic    string   `yaml:"alert_topic" default:"barpilot.alerts"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"gzip"`
		Consumer      struct {
			GroupID    string        `yaml:"group_id" default:"barpilot"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled      bool          `yaml:"enabled" default:"true"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"barpilot"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled" default:"true"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" default:"0"`
		Prefix   string `yaml:"prefix" default:"barpilot"`
	} `yaml:"redis"`

	MarketData struct {
		WebSocketURL   string        `yaml:"websocket_url" validate:"required"`
		APIKey         string        `yaml:"api_key"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"3s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"15s"`
	} `yaml:"market_data"`
}

// Load reads, defaults and validates a YAML configuration file. Any
// validation failure is a fatal startup error.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes, defaults and validates raw YAML config bytes.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("ENGINE_SEED"); v != "" {
		if seed, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			c.Engine.Seed = seed
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	e := &c.Engine
	seen := map[string]bool{}
	for _, a := range e.Arms {
		if seen[a] {
			return fmt.Errorf("engine.arms: duplicate arm %q", a)
		}
		seen[a] = true
	}
	if e.VolMax <= e.VolMin {
		return fmt.Errorf("engine.vol_max must exceed engine.vol_min")
	}
	if e.ExecBackoffMax < e.ExecBackoffMin {
		return fmt.Errorf("engine.exec_backoff_max must be >= engine.exec_backoff_min")
	}
	for _, v := range []float64{e.PriorMu, e.PriorSigma, e.CalibA, e.CalibB} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("engine: prior/calibration values must be finite")
		}
	}
	return nil
}
