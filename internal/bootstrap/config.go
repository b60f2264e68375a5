package bootstrap

import (
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	GrpcPort      string `mapstructure:"GRPC_PORT"`
	RedisUrl      string `mapstructure:"REDIS_URL"`
	MongoUri      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	IsLocalCors   bool   `mapstructure:"LOCAL_CORS"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`

	KatagoPath    string  `mapstructure:"KATAGO_PATH"`
	KatagoModel   string  `mapstructure:"KATAGO_MODEL"`
	KatagoConfig  string  `mapstructure:"KATAGO_CONFIG"`
	MaxVisits     int     `mapstructure:"MAX_VISITS"`
	FastVisits    int     `mapstructure:"FAST_VISITS"`
	MaxTime       float64 `mapstructure:"MAX_TIME"`
	WideRootNoise float64 `mapstructure:"WIDE_ROOT_NOISE"`
	Ownership     bool    `mapstructure:"INCLUDE_OWNERSHIP"`

	BoardSize    int     `mapstructure:"BOARD_SIZE"`
	Komi         float64 `mapstructure:"KOMI"`
	Rules        string  `mapstructure:"RULES"`
	AIConfigPath string  `mapstructure:"AI_CONFIG"`
}

var defaults = map[string]any{
	"SERVER_PORT":       "8080",
	"GRPC_PORT":         "9090",
	"REDIS_URL":         "",
	"MONGO_URI":         "",
	"MONGO_DATABASE":    "katrain",
	"LOCAL_CORS":        false,
	"LOG_LEVEL":         "info",
	"KATAGO_PATH":       "katago",
	"KATAGO_MODEL":      "kata1-b18c384nbt.bin.gz",
	"KATAGO_CONFIG":     "analysis.cfg",
	"MAX_VISITS":        500,
	"FAST_VISITS":       25,
	"MAX_TIME":          8.0,
	"WIDE_ROOT_NOISE":   0.04,
	"INCLUDE_OWNERSHIP": true,
	"BOARD_SIZE":        19,
	"KOMI":              6.5,
	"RULES":             "japanese",
	"AI_CONFIG":         "",
}

// Setup reads cfgPath (any format viper knows, usually .env) on top of the
// defaults; environment variables override both. An empty path skips the file.
func Setup(cfgPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
