package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the explicit configuration object handed to every component at
// construction. There is no ambient global state; the debug level lives here.
type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Milvus    MilvusConfig
	Redis     RedisConfig
	Inference InferenceConfig
	Analysis  AnalysisConfig
	Knowledge KnowledgeConfig
	Storage   StorageConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type InferenceConfig struct {
	CloudAPIKey    string
	CloudModel     string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
	OllamaURL      string
	OnDeviceModel  string
}

type AnalysisConfig struct {
	// TokenThreshold is the exclusive upper bound for on-device routing.
	TokenThreshold  int
	Tier3Confidence float64
}

type KnowledgeConfig struct {
	ChunkMaxChars       int
	DedupThreshold      float64
	SearchMinSimilarity float64
	SearchTopK          int
}

type StorageConfig struct {
	DefaultMode string
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
	viper.AddConfigPath("/etc/formsnapper")

	viper.SetEnvPrefix("FORMSNAPPER")
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

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/formsnapper.db")

	viper.SetDefault("milvus.endpoint", "")
	viper.SetDefault("milvus.collectionName", "kb_chunks")

	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 24)

	viper.SetDefault("inference.cloudModel", "gpt-4o-mini")
	viper.SetDefault("inference.temperature", 0.2)
	viper.SetDefault("inference.maxTokens", 2048)
	viper.SetDefault("inference.timeoutSec", 60)
	viper.SetDefault("inference.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("inference.embeddingDim", 1536)
	viper.SetDefault("inference.ollamaURL", "http://localhost:11434")
	viper.SetDefault("inference.onDeviceModel", "llama3.2")

	viper.SetDefault("analysis.tokenThreshold", 6000)
	viper.SetDefault("analysis.tier3Confidence", 0.85)

	viper.SetDefault("knowledge.chunkMaxChars", 500)
	viper.SetDefault("knowledge.dedupThreshold", 0.95)
	viper.SetDefault("knowledge.searchMinSimilarity", 0.3)
	viper.SetDefault("knowledge.searchTopK", 5)

	viper.SetDefault("storage.defaultMode", "local")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
