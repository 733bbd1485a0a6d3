package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration は "10m" 形式の文字列をyamlから受けるためのラッパー。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LineConfig struct {
	ChannelSecret      string `yaml:"channel_secret"`
	ChannelAccessToken string `yaml:"channel_access_token"`
}

type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl"`
}

type SweepConfig struct {
	// Interval <= 0 なら内蔵スケジューラは起動しない（外部cronからAPIを叩く運用）
	Interval  Duration `yaml:"interval"`
	Lookahead Duration `yaml:"lookahead"`
}

type BotConfig struct {
	YesToken string `yaml:"yes_token"`
	NoToken  string `yaml:"no_token"`
}

type Config struct {
	Version string         `yaml:"version"`
	Mode    string         `yaml:"mode"`
	Server  ServerConfig   `yaml:"server"`
	DB      DatabaseConfig `yaml:"database"`
	Line    LineConfig     `yaml:"line"`
	Auth    AuthConfig     `yaml:"auth"`
	Sweep   SweepConfig    `yaml:"sweep"`
	Bot     BotConfig      `yaml:"bot"`
}

func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = Duration(24 * time.Hour)
	}
	if c.Sweep.Lookahead < 0 {
		c.Sweep.Lookahead = 0
	}
	// 返答キーワードは差し替え可能。未設定なら日本語デフォルト。
	if c.Bot.YesToken == "" {
		c.Bot.YesToken = "はい"
	}
	if c.Bot.NoToken == "" {
		c.Bot.NoToken = "いいえ"
	}
}

func (c *Config) validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	if c.Line.ChannelSecret == "" || c.Line.ChannelAccessToken == "" {
		return fmt.Errorf("line.channel_secret and line.channel_access_token are required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Bot.YesToken == c.Bot.NoToken {
		return fmt.Errorf("bot.yes_token and bot.no_token must differ")
	}
	return nil
}
