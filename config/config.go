package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/wfunc/durak/durak"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
	Log      LogConfig      `mapstructure:"log"`
	Trace    TraceConfig    `mapstructure:"trace"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	GRPCAddress    string `mapstructure:"grpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	// Driver 可选 gorm、postgres、sqlite
	Driver   string         `mapstructure:"driver"`
	DSN      string         `mapstructure:"dsn"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// URL 返回 lib/pq 可用的连接串
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type GameConfig struct {
	Players int    `mapstructure:"players"`
	Bet     uint64 `mapstructure:"bet"`
	// DeckSize 为 0 时按人数选择 36 或 52
	DeckSize int    `mapstructure:"deck_size"`
	Seed     string `mapstructure:"seed"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TraceConfig 为空 endpoint 时不导出 span
type TraceConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

var ErrNoSecret = errors.New("config: auth.secret is required")

// Rules builds validated table rules from the game section.
func (g GameConfig) Rules() (durak.Rules, error) {
	rules := durak.DefaultRules(g.Players)
	rules.BetAmount = g.Bet
	if g.DeckSize > 0 {
		rules.DeckSize = g.DeckSize
	}
	if err := rules.Validate(); err != nil {
		return durak.Rules{}, err
	}
	return rules, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.grpc_address", ":8082")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("game.players", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("trace.service_name", "durak")
}

// LoadConfig reads config.yaml from path. Every key can be overridden from
// the environment, e.g. DURAK_AUTH_SECRET or DURAK_GAME_PLAYERS.
func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("DURAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config.Auth.Secret == "" {
		return nil, ErrNoSecret
	}
	return config, nil
}
