package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Decay      DecayConfig
	Mastery    MasteryConfig
	Bottleneck BottleneckConfig
	Priority   PriorityConfig
	Evaluation EvaluationConfig
	Content    ContentConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	MaxRequestsPerMinute int
	UrgencyRefreshSec    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	QueueTTLSec int
}

type DecayConfig struct {
	LapseStabilityFactor float64
	HardMultiplier       float64
	GoodMultiplier       float64
	EasyMultiplier       float64
	LapseDifficultyStep  float64
	EasyDifficultyStep   float64
}

type MasteryConfig struct {
	SmoothingAlpha float64
}

type BottleneckConfig struct {
	WindowDays         int
	RecentWindowDays   int
	ErrorRateThreshold float64
	CascadeRatio       float64
	CascadeConfidence  float64
	MinResponses       int
	MinPatternCount    int
	TopPatterns        int
}

type PriorityConfig struct {
	FrequencyWeight  float64
	RelationalWeight float64
	DomainWeight     float64
	MorphWeight      float64
	PhonWeight       float64
	UrgencyWeight    float64
	BottleneckWeight float64
	BottleneckBoost  float64
}

type EvaluationConfig struct {
	FuzzyThreshold   float64
	PartialThreshold float64
	FastLatencyMs    int
	TrainingWeight   float64
}

type ContentConfig struct {
	Enabled     bool
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/adaptlearn")

	viper.SetEnvPrefix("ADAPTLEARN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Priority.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks that the seven ranking weights sum to 1.0. The split
// between base-value, urgency and bottleneck weights is configuration, but
// an unnormalized sum would make effective priorities incomparable across
// deployments.
func (p PriorityConfig) Validate() error {
	sum := p.FrequencyWeight + p.RelationalWeight + p.DomainWeight +
		p.MorphWeight + p.PhonWeight + p.UrgencyWeight + p.BottleneckWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("priority weights must sum to 1.0, got %f", sum)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.maxRequestsPerMinute", 120)
	viper.SetDefault("server.urgencyRefreshSec", 300)

	viper.SetDefault("sqlite.path", "./data/adaptlearn.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.queueTTLSec", 300)

	viper.SetDefault("decay.lapseStabilityFactor", 0.2)
	viper.SetDefault("decay.hardMultiplier", 1.5)
	viper.SetDefault("decay.goodMultiplier", 2.0)
	viper.SetDefault("decay.easyMultiplier", 2.5)
	viper.SetDefault("decay.lapseDifficultyStep", 1.0)
	viper.SetDefault("decay.easyDifficultyStep", 0.3)

	viper.SetDefault("mastery.smoothingAlpha", 0.2)

	viper.SetDefault("bottleneck.windowDays", 14)
	viper.SetDefault("bottleneck.recentWindowDays", 7)
	viper.SetDefault("bottleneck.errorRateThreshold", 0.30)
	viper.SetDefault("bottleneck.cascadeRatio", 0.67)
	viper.SetDefault("bottleneck.cascadeConfidence", 0.70)
	viper.SetDefault("bottleneck.minResponses", 20)
	viper.SetDefault("bottleneck.minPatternCount", 2)
	viper.SetDefault("bottleneck.topPatterns", 5)

	viper.SetDefault("priority.frequencyWeight", 0.20)
	viper.SetDefault("priority.relationalWeight", 0.15)
	viper.SetDefault("priority.domainWeight", 0.15)
	viper.SetDefault("priority.morphWeight", 0.10)
	viper.SetDefault("priority.phonWeight", 0.10)
	viper.SetDefault("priority.urgencyWeight", 0.20)
	viper.SetDefault("priority.bottleneckWeight", 0.10)
	viper.SetDefault("priority.bottleneckBoost", 0.10)

	viper.SetDefault("evaluation.fuzzyThreshold", 0.90)
	viper.SetDefault("evaluation.partialThreshold", 0.70)
	viper.SetDefault("evaluation.fastLatencyMs", 5000)
	viper.SetDefault("evaluation.trainingWeight", 0.5)

	viper.SetDefault("content.enabled", false)
	viper.SetDefault("content.model", "gpt-4o-mini")
	viper.SetDefault("content.temperature", 0.4)
	viper.SetDefault("content.maxTokens", 256)
	viper.SetDefault("content.timeoutSec", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
