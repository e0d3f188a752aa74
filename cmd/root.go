package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "jd-validator"
	envPrefix = "JDV"
)

type Config struct {
	AI        *AIConfig        `mapstructure:"ai"`
	Embedding *EmbeddingConfig `mapstructure:"embedding"`
	Index     *IndexConfig     `mapstructure:"index"`
	Portfolio *PortfolioConfig `mapstructure:"portfolio"`
	Page      *PageConfig      `mapstructure:"page"`
	Pipeline  *PipelineConfig  `mapstructure:"pipeline"`
	Server    *ServerConfig    `mapstructure:"server"`
}

// AIConfig selects the generative model used for extraction and composition.
type AIConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	Temperature  float32       `mapstructure:"temperature"`
	BaseURL      string        `mapstructure:"base-url"`
	APIKey       string        `mapstructure:"api-key"`
	APIKeyFile   string        `mapstructure:"api-key-file"`
	MaxRetries   int           `mapstructure:"max-retries"`
	RetryBackoff time.Duration `mapstructure:"retry-backoff"`
	MaxLogLength int           `mapstructure:"max-log-length"`
}

// EmbeddingConfig selects the embedding model used by the skill index.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BaseURL    string `mapstructure:"base-url"`
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type IndexConfig struct {
	Backend    string       `mapstructure:"backend"`
	Collection string       `mapstructure:"collection"`
	Redis      *RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addrs        []string `mapstructure:"addrs"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	PasswordFile string   `mapstructure:"password-file"`
	DB           int      `mapstructure:"db"`
}

type PortfolioConfig struct {
	File string `mapstructure:"file"`
}

type PageConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user-agent"`
}

type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jd-validator matches job postings against your portfolio and drafts tailored applications",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jd-validator.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", "groq")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.base-url", "")
	v.SetDefault("ai.api-key", "")
	v.SetDefault("ai.api-key-file", "")
	v.SetDefault("ai.max-retries", 0)
	v.SetDefault("ai.retry-backoff", "2s")
	v.SetDefault("ai.max-log-length", 200)

	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.base-url", "")
	v.SetDefault("embedding.api-key", "")
	v.SetDefault("embedding.api-key-file", "")

	v.SetDefault("index.backend", "memory")
	v.SetDefault("index.collection", "portfolio")
	v.SetDefault("index.redis.addrs", []string{"localhost:6379"})
	v.SetDefault("index.redis.username", "")
	v.SetDefault("index.redis.password", "")
	v.SetDefault("index.redis.password-file", "")
	v.SetDefault("index.redis.db", 0)

	v.SetDefault("portfolio.file", "my_portfolio.csv")

	v.SetDefault("page.timeout", "30s")
	v.SetDefault("page.user-agent", "")

	v.SetDefault("pipeline.concurrency", 1)

	v.SetDefault("server.addr", ":8080")
}

func initConfig() {
	// A missing .env is fine; a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Without an explicit --config every setting has a usable default.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	return config, nil
}
