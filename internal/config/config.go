package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	MissingProductReject = "reject"
	MissingProductSkip   = "skip"

	FixedDiscountUncapped = "uncapped"
	FixedDiscountClamp    = "clamp"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	StoreDriver string // postgres / memory

	DatabaseURL      string // あればPOSTGRES_*より優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string
	DBMaxOpenConns   int
	DBMaxIdleConns   int

	JWTSecret string // JWT検証用（発行は外部IdP）

	LogLevel string

	Pricing PricingConfig

	RedisAddress string   // 空ならロックなし
	KafkaBrokers []string // 空ならイベント送信なし
	KafkaTopic   string

	RateLimit RateLimitConfig
}

// 料金計算まわり
type PricingConfig struct {
	TaxRate                decimal.Decimal
	ShippingStandardAmount int64
	ShippingExpressAmount  int64
	Currency               string
	MissingProductPolicy   string // reject / skip
	FixedDiscountPolicy    string // uncapped / clamp（小計を超える定額割引を小計で止めるか）
}

type RateLimitConfig struct {
	Capacity int
	TTL      time.Duration
	RPS      float64
	Burst    int
}

// Loadは環境変数
func Load() (Config, error) {
	// .envは任意
	_ = godotenv.Load()

	cfg := Config{
		Port:  getenv("PORT", "8080"),
		GoEnv: getenv("GO_ENV", "dev"),

		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", StoreDriverPostgres)),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		LogLevel:  getenv("LOG_LEVEL", "info"),

		RedisAddress: os.Getenv("REDIS_ADDRESS"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "marketplace.events"),
	}

	var err error
	if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxOpenConns, err = atoiDefault("DB_MAX_OPEN_CONNS", 25); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxIdleConns, err = atoiDefault("DB_MAX_IDLE_CONNS", 10); err != nil {
		return Config{}, err
	}

	if cfg.Pricing, err = loadPricing(); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = loadRateLimit(); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			if cfg.PostgresUser == "" {
				return Config{}, fmt.Errorf("POSTGRES_USER is required")
			}
			if cfg.PostgresDB == "" {
				return Config{}, fmt.Errorf("POSTGRES_DB is required")
			}
			if cfg.PostgresHost == "" {
				return Config{}, fmt.Errorf("POSTGRES_HOST is required")
			}
		}
	case StoreDriverMemory:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be postgres or memory: %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func loadPricing() (PricingConfig, error) {
	p := PricingConfig{
		Currency:             strings.ToUpper(getenv("CURRENCY", "ZAR")),
		MissingProductPolicy: strings.ToLower(getenv("PRICING_MISSING_PRODUCT_POLICY", MissingProductReject)),
		FixedDiscountPolicy:  strings.ToLower(getenv("PRICING_FIXED_DISCOUNT_POLICY", FixedDiscountUncapped)),
	}

	rate, err := decimal.NewFromString(getenv("TAX_RATE", "0.15"))
	if err != nil {
		return PricingConfig{}, fmt.Errorf("TAX_RATE must be decimal: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return PricingConfig{}, fmt.Errorf("TAX_RATE must be between 0 and 1")
	}
	p.TaxRate = rate

	if p.ShippingStandardAmount, err = atoi64Default("SHIPPING_STANDARD_AMOUNT", 9900); err != nil {
		return PricingConfig{}, err
	}
	if p.ShippingExpressAmount, err = atoi64Default("SHIPPING_EXPRESS_AMOUNT", 19900); err != nil {
		return PricingConfig{}, err
	}
	if p.ShippingStandardAmount < 0 || p.ShippingExpressAmount < 0 {
		return PricingConfig{}, fmt.Errorf("shipping amounts must not be negative")
	}

	if p.MissingProductPolicy != MissingProductReject && p.MissingProductPolicy != MissingProductSkip {
		return PricingConfig{}, fmt.Errorf("PRICING_MISSING_PRODUCT_POLICY must be reject or skip: %q", p.MissingProductPolicy)
	}
	if p.FixedDiscountPolicy != FixedDiscountUncapped && p.FixedDiscountPolicy != FixedDiscountClamp {
		return PricingConfig{}, fmt.Errorf("PRICING_FIXED_DISCOUNT_POLICY must be uncapped or clamp: %q", p.FixedDiscountPolicy)
	}
	return p, nil
}

func loadRateLimit() (RateLimitConfig, error) {
	rl := RateLimitConfig{}
	var err error
	if rl.Capacity, err = atoiDefault("RATE_LIMIT_CAPACITY", 10000); err != nil {
		return RateLimitConfig{}, err
	}
	if rl.Burst, err = atoiDefault("RATE_LIMIT_BURST", 10); err != nil {
		return RateLimitConfig{}, err
	}

	rl.TTL, err = time.ParseDuration(getenv("RATE_LIMIT_TTL", "10m"))
	if err != nil {
		return RateLimitConfig{}, fmt.Errorf("RATE_LIMIT_TTL must be duration: %w", err)
	}
	rl.RPS, err = strconv.ParseFloat(getenv("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		return RateLimitConfig{}, fmt.Errorf("RATE_LIMIT_RPS must be number: %w", err)
	}

	if rl.Capacity <= 0 || rl.Burst <= 0 || rl.RPS <= 0 || rl.TTL <= 0 {
		return RateLimitConfig{}, fmt.Errorf("RATE_LIMIT_* must be positive")
	}
	return rl, nil
}

func getenv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func atoi64Default(key string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
