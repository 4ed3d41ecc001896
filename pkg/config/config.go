package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	App       App       `mapstructure:"app"`
	DB        DB        `mapstructure:"db"`
	HTTP      HTTP      `mapstructure:"http"`
	Mail      Mail      `mapstructure:"mail"`
	Chains    []Chain   `mapstructure:"chains"`
	Sweeper   Sweeper   `mapstructure:"sweeper"`
	RateLimit RateLimit `mapstructure:"ratelimit"`
}

type App struct {
	// Env selects the payment identifier prefix: development, release or anything else.
	Env string `mapstructure:"env"`
}

type DB struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type HTTP struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Mail struct {
	From          string `mapstructure:"from"`
	FromName      string `mapstructure:"from_name"`
	MailjetKey    string `mapstructure:"mailjet_key"`
	MailjetSecret string `mapstructure:"mailjet_secret"`
	SMTPHost      string `mapstructure:"smtp_host"`
	SMTPPort      int    `mapstructure:"smtp_port"`
	SMTPUser      string `mapstructure:"smtp_user"`
	SMTPPassword  string `mapstructure:"smtp_password"`
	AppURL        string `mapstructure:"app_url"`
}

type Chain struct {
	Name             string        `mapstructure:"name"`
	RPCURL           string        `mapstructure:"rpc_url"`
	WSURL            string        `mapstructure:"ws_url"`
	ForwarderAddress string        `mapstructure:"forwarder_address"`
	TokenDecimals    int32         `mapstructure:"token_decimals"`
	ExplorerURL      string        `mapstructure:"explorer_url"`
	ExplorerAPIKey   string        `mapstructure:"explorer_api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type Sweeper struct {
	Schedule string `mapstructure:"schedule"`
	Chain    string `mapstructure:"chain"`
	Batch    int    `mapstructure:"batch"`
}

// RateLimit budgets are per authenticated user; the IP budget applies before
// authentication.
type RateLimit struct {
	RequestsPerSecond   int `mapstructure:"rps"`
	Burst               int `mapstructure:"burst"`
	IPRequestsPerSecond int `mapstructure:"ip_rps"`
	IPBurst             int `mapstructure:"ip_burst"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("http.port", "8000")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("sweeper.schedule", "@every 1m")
	v.SetDefault("sweeper.batch", 50)
	v.SetDefault("ratelimit.rps", 10)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.ip_rps", 50)
	v.SetDefault("ratelimit.ip_burst", 100)
}

// Load unmarshals v into a Config and fills per-chain defaults.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshal config")
	}
	seen := make(map[string]bool, len(cfg.Chains))
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if c.Name == "" {
			return cfg, errors.Errorf("chains[%d]: name is required", i)
		}
		if seen[c.Name] {
			return cfg, errors.Errorf("chains[%d]: duplicate chain %q", i, c.Name)
		}
		seen[c.Name] = true
		if c.Timeout <= 0 {
			c.Timeout = 30 * time.Second
		}
		if c.TokenDecimals == 0 {
			c.TokenDecimals = 6
		}
	}
	if cfg.Sweeper.Chain == "" && len(cfg.Chains) > 0 {
		cfg.Sweeper.Chain = cfg.Chains[0].Name
	}
	return cfg, nil
}

func (c Config) Chain(name string) (Chain, bool) {
	for _, ch := range c.Chains {
		if ch.Name == name {
			return ch, true
		}
	}
	return Chain{}, false
}
