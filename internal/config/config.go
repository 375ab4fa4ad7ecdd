package config

import "github.com/spf13/viper"

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Telegram struct {
		Token      string
		OpsChatID  int64 `mapstructure:"ops_chat_id"`
		TimeoutSec int   `mapstructure:"timeout_sec"`
	} `mapstructure:"telegram"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Circulation struct {
		DefaultLoanDays    int     `mapstructure:"default_loan_days"`
		ClaimWindowDays    int     `mapstructure:"claim_window_days"`
		FineBlockThreshold float64 `mapstructure:"fine_block_threshold"`
		DefaultWaitDays    int     `mapstructure:"default_wait_days"`
		StatsCacheTTLSec   int     `mapstructure:"stats_cache_ttl_sec"`
	} `mapstructure:"circulation"`

	Jobs struct {
		OverdueSweep     string `mapstructure:"overdue_sweep"`
		ReservationSweep string `mapstructure:"reservation_sweep"`
		PopularitySweep  string `mapstructure:"popularity_sweep"`
	} `mapstructure:"jobs"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("circulation.default_loan_days", 14)
	v.SetDefault("circulation.claim_window_days", 7)
	v.SetDefault("circulation.fine_block_threshold", 50.0)
	v.SetDefault("circulation.default_wait_days", 14)
	v.SetDefault("circulation.stats_cache_ttl_sec", 300)
	v.SetDefault("jobs.overdue_sweep", "0 0 * * *")
	v.SetDefault("jobs.reservation_sweep", "0 * * * *")
	v.SetDefault("jobs.popularity_sweep", "30 2 * * *")

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
