package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	LogLevel    string
	ServiceName string
	CampaignID  string
	WorkerID    string
	DatabaseURL string
	Campaign    CampaignConfig
}

// CampaignConfig holds the fuzzing-campaign knobs. Values come from the
// optional YAML campaign file and may be overridden per-field through the
// environment.
type CampaignConfig struct {
	Workspace        string
	DictPath         string
	SeedsDir         string
	VMBinary         string
	Timeout          time.Duration
	MaxIterations    int
	MaxDuration      time.Duration
	MaxInputSize     int
	MaxProgramLen    int
	StatsInterval    time.Duration
	Seed             int64
	AutoMinimize     bool
	MinimizeAttempts int
}

type campaignFile struct {
	Workspace        string `yaml:"workspace"`
	Dict             string `yaml:"dict"`
	SeedsDir         string `yaml:"seeds_dir"`
	VMBinary         string `yaml:"vm_binary"`
	Timeout          string `yaml:"timeout"`
	MaxIterations    *int   `yaml:"max_iterations"`
	MaxDuration      string `yaml:"max_duration"`
	MaxInputSize     *int   `yaml:"max_input_size"`
	MaxProgramLen    *int   `yaml:"max_program_len"`
	StatsInterval    string `yaml:"stats_interval"`
	Seed             *int64 `yaml:"seed"`
	AutoMinimize     *bool  `yaml:"auto_minimize"`
	MinimizeAttempts *int   `yaml:"minimize_attempts"`
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	godotenv.Load()

	campaign := CampaignConfig{
		Workspace:        "workspace",
		Timeout:          2 * time.Second,
		MaxInputSize:     4096,
		StatsInterval:    10 * time.Second,
		AutoMinimize:     true,
		MinimizeAttempts: 512,
	}
	if path := os.Getenv("FELTFUZZ_CONFIG"); path != "" {
		applyCampaignFile(logger, path, &campaign)
	}
	applyCampaignEnv(&campaign)

	config := &AppConfig{
		LogLevel:    os.Getenv("LOG_LEVEL"),
		ServiceName: os.Getenv("SERVICE_NAME"),
		CampaignID:  os.Getenv("CAMPAIGN_ID"),
		WorkerID:    uuid.NewString(),
		DatabaseURL: os.Getenv("DATABASE_URL"), // optional, findings sink disabled when empty
		Campaign:    campaign,
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.ServiceName == "" {
		config.ServiceName = "feltfuzz"
	}
	if config.CampaignID == "" {
		config.CampaignID = uuid.NewString()
	}
	if config.Campaign.Timeout <= 0 {
		logger.Fatal("execution timeout must be positive")
	}

	return config
}

func applyCampaignFile(logger *zap.Logger, path string, c *CampaignConfig) {
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("Failed to read campaign config", zap.String("path", path), zap.Error(err))
	}
	var f campaignFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		logger.Fatal("Failed to parse campaign config", zap.String("path", path), zap.Error(err))
	}

	if f.Workspace != "" {
		c.Workspace = f.Workspace
	}
	if f.Dict != "" {
		c.DictPath = f.Dict
	}
	if f.SeedsDir != "" {
		c.SeedsDir = f.SeedsDir
	}
	if f.VMBinary != "" {
		c.VMBinary = f.VMBinary
	}
	c.Timeout = parseDuration(f.Timeout, c.Timeout)
	c.MaxDuration = parseDuration(f.MaxDuration, c.MaxDuration)
	c.StatsInterval = parseDuration(f.StatsInterval, c.StatsInterval)
	if f.MaxIterations != nil {
		c.MaxIterations = *f.MaxIterations
	}
	if f.MaxInputSize != nil {
		c.MaxInputSize = *f.MaxInputSize
	}
	if f.MaxProgramLen != nil {
		c.MaxProgramLen = *f.MaxProgramLen
	}
	if f.Seed != nil {
		c.Seed = *f.Seed
	}
	if f.AutoMinimize != nil {
		c.AutoMinimize = *f.AutoMinimize
	}
	if f.MinimizeAttempts != nil {
		c.MinimizeAttempts = *f.MinimizeAttempts
	}
}

func applyCampaignEnv(c *CampaignConfig) {
	if v := os.Getenv("FELTFUZZ_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("FELTFUZZ_DICT"); v != "" {
		c.DictPath = v
	}
	if v := os.Getenv("FELTFUZZ_SEEDS"); v != "" {
		c.SeedsDir = v
	}
	if v := os.Getenv("FELTFUZZ_VM"); v != "" {
		c.VMBinary = v
	}
	c.Timeout = parseDuration(os.Getenv("FELTFUZZ_TIMEOUT"), c.Timeout)
	c.MaxDuration = parseDuration(os.Getenv("FELTFUZZ_MAX_DURATION"), c.MaxDuration)
	c.StatsInterval = parseDuration(os.Getenv("FELTFUZZ_STATS_INTERVAL"), c.StatsInterval)
	c.MaxIterations = parseInt(os.Getenv("FELTFUZZ_MAX_ITERATIONS"), c.MaxIterations)
	c.MaxInputSize = parseInt(os.Getenv("FELTFUZZ_MAX_INPUT_SIZE"), c.MaxInputSize)
	c.MaxProgramLen = parseInt(os.Getenv("FELTFUZZ_MAX_PROGRAM_LEN"), c.MaxProgramLen)
	c.MinimizeAttempts = parseInt(os.Getenv("FELTFUZZ_MINIMIZE_ATTEMPTS"), c.MinimizeAttempts)
	c.Seed = parseInt64(os.Getenv("FELTFUZZ_SEED"), c.Seed)
	if v := os.Getenv("FELTFUZZ_AUTO_MINIMIZE"); v != "" {
		c.AutoMinimize = v == "1" || v == "true"
	}
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseInt64(val string, defaultVal int64) int64 {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}
