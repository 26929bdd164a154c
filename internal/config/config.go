package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Configはアプリ全体の設定
type Config struct {
	App         AppConfig
	DB          DBConfig
	JWT         JWTConfig
	Pricing     PricingConfig
	OrderNumber OrderNumberConfig
}

type AppConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	GoEnv     string `envconfig:"GO_ENV" required:"true"` // dev/prod
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"` // json/console
	FEURL     string `envconfig:"FE_URL"`                    // CORS用
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.GoEnv, EnvDev)
}

// Addrは":8080"形式に揃える
func (a AppConfig) Addr() string {
	if a.Port == "" {
		return ":8080"
	}
	if a.Port[0] != ':' {
		return ":" + a.Port
	}
	return a.Port
}

type DBConfig struct {
	// DATABASE_URLがあれば最優先
	URL string `envconfig:"DATABASE_URL"`

	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	Name     string `envconfig:"POSTGRES_DB" default:"app"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// DSNは接続文字列を返す
func (d DBConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret string `envconfig:"JWT_SECRET" required:"true"`
}

// 税率・送料。値を変えなければ 8.5% / 50以上で送料無料 / 送料5
type PricingConfig struct {
	TaxRate               decimal.Decimal `envconfig:"TAX_RATE" default:"0.085"`
	FreeShippingThreshold decimal.Decimal `envconfig:"FREE_SHIPPING_THRESHOLD" default:"50"`
	FlatShippingFee       decimal.Decimal `envconfig:"FLAT_SHIPPING_FEE" default:"5"`
}

type OrderNumberConfig struct {
	Prefix      string `envconfig:"ORDER_NUMBER_PREFIX" default:"ORD"`
	MaxAttempts int    `envconfig:"ORDER_NUMBER_MAX_ATTEMPTS" default:"10"`
}

// Loadは環境変数から設定を読む。envFilesがあれば先に読み込む（無くてもエラーにしない）
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Pricing.TaxRate.IsNegative() {
		return Config{}, fmt.Errorf("TAX_RATE must be >= 0")
	}
	if cfg.Pricing.FlatShippingFee.IsNegative() {
		return Config{}, fmt.Errorf("FLAT_SHIPPING_FEE must be >= 0")
	}
	if cfg.OrderNumber.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("ORDER_NUMBER_MAX_ATTEMPTS must be >= 1")
	}
	if strings.TrimSpace(cfg.OrderNumber.Prefix) == "" {
		return Config{}, fmt.Errorf("ORDER_NUMBER_PREFIX is required")
	}

	return cfg, nil
}
