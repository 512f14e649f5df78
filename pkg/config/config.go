package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBName         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConn     int           `mapstructure:"MAX_OPEN_CONN"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr     string `mapstructure:"ADDR"`
		Password string `mapstructure:"PASSWORD"`
		DB       int    `mapstructure:"DB"`
	} `mapstructure:"REDIS"`
	Loyalty LoyaltyConfig `mapstructure:"LOYALTY"`
}

// LoyaltyConfig carries the engine tunables. Monetary values are in minor
// currency units, durations of validity in days.
type LoyaltyConfig struct {
	// FeePerPoint is the platform fee charged per point issued.
	FeePerPoint uint64 `mapstructure:"FEE_PER_POINT"`
	// RegistrationFee is the one-time fee a merchant pays on registration.
	RegistrationFee uint64 `mapstructure:"REGISTRATION_FEE"`
	// VoucherValidityDays is the fixed voucher lifetime from redemption.
	VoucherValidityDays int `mapstructure:"VOUCHER_VALIDITY_DAYS"`
	// TxMaxRetries bounds retries of a contended issuance or redemption
	// transaction before the failure is surfaced to the caller.
	TxMaxRetries int           `mapstructure:"TX_MAX_RETRIES"`
	RetryBackoff time.Duration `mapstructure:"RETRY_BACKOFF"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() (*Config, error) {
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults()

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	config.SetDefault("APP_ENV", "development")
	config.SetDefault("APP_NAME", "solcity-loyalty")
	config.SetDefault("HTTP_SERVER.ADDR", ":8080")
	config.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	config.SetDefault("DATABASE.TYPE", "postgres")
	config.SetDefault("DATABASE.HOST", "127.0.0.1")
	config.SetDefault("DATABASE.PORT", "5432")
	config.SetDefault("DATABASE.SSLMODE", "disable")
	config.SetDefault("DATABASE.TIMEZONE", "UTC")
	config.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	config.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONN", 25)
	config.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	config.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	config.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	config.SetDefault("LOYALTY.FEE_PER_POINT", 5)
	config.SetDefault("LOYALTY.REGISTRATION_FEE", 10000)
	config.SetDefault("LOYALTY.VOUCHER_VALIDITY_DAYS", 30)
	config.SetDefault("LOYALTY.TX_MAX_RETRIES", 3)
	config.SetDefault("LOYALTY.RETRY_BACKOFF", 50*time.Millisecond)
}
