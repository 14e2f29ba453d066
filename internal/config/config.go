package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Checkout CheckoutConfig
	GDPR     GDPRConfig
	Queue    QueueConfig
	Search   SearchConfig
	SMTP     SMTPConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

type CheckoutConfig struct {
	TaxRate           float64 // e.g. 0.08 for 8%
	ShippingFlat      float64
	FreeShippingOver  float64
	LowStockThreshold int
}

type GDPRConfig struct {
	StoragePath      string
	ExportExpiryDays int
	OverdueDays      int
}

type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

type SearchConfig struct {
	Enabled bool
	Host    string
	APIKey  string
	Index   string
}

type SMTPConfig struct {
	Enabled bool
	Host    string
	Port    string
	From    string
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("CHECKOUT_TAX_RATE", 0.0)
	viper.SetDefault("CHECKOUT_SHIPPING_FLAT", 5.00)
	viper.SetDefault("CHECKOUT_FREE_SHIPPING_OVER", 100.00)
	viper.SetDefault("CHECKOUT_LOW_STOCK_THRESHOLD", 5)
	viper.SetDefault("GDPR_STORAGE_PATH", "storage/gdpr")
	viper.SetDefault("GDPR_EXPORT_EXPIRY_DAYS", 30)
	viper.SetDefault("GDPR_OVERDUE_DAYS", 30)
	viper.SetDefault("QUEUE_WORKERS", 4)
	viper.SetDefault("QUEUE_BUFFER_SIZE", 256)
	viper.SetDefault("QUEUE_MAX_RETRIES", 3)
	viper.SetDefault("SEARCH_ENABLED", false)
	viper.SetDefault("SEARCH_HOST", "http://localhost:7700")
	viper.SetDefault("SEARCH_INDEX", "products")
	viper.SetDefault("SMTP_ENABLED", false)
	viper.SetDefault("SMTP_HOST", "localhost")
	viper.SetDefault("SMTP_PORT", "25")
	viper.SetDefault("SMTP_FROM", "noreply@marketplace.local")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
			Env:  viper.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Checkout: CheckoutConfig{
			TaxRate:           viper.GetFloat64("CHECKOUT_TAX_RATE"),
			ShippingFlat:      viper.GetFloat64("CHECKOUT_SHIPPING_FLAT"),
			FreeShippingOver:  viper.GetFloat64("CHECKOUT_FREE_SHIPPING_OVER"),
			LowStockThreshold: viper.GetInt("CHECKOUT_LOW_STOCK_THRESHOLD"),
		},
		GDPR: GDPRConfig{
			StoragePath:      viper.GetString("GDPR_STORAGE_PATH"),
			ExportExpiryDays: viper.GetInt("GDPR_EXPORT_EXPIRY_DAYS"),
			OverdueDays:      viper.GetInt("GDPR_OVERDUE_DAYS"),
		},
		Queue: QueueConfig{
			Workers:    viper.GetInt("QUEUE_WORKERS"),
			BufferSize: viper.GetInt("QUEUE_BUFFER_SIZE"),
			MaxRetries: viper.GetInt("QUEUE_MAX_RETRIES"),
		},
		Search: SearchConfig{
			Enabled: viper.GetBool("SEARCH_ENABLED"),
			Host:    viper.GetString("SEARCH_HOST"),
			APIKey:  viper.GetString("SEARCH_API_KEY"),
			Index:   viper.GetString("SEARCH_INDEX"),
		},
		SMTP: SMTPConfig{
			Enabled: viper.GetBool("SMTP_ENABLED"),
			Host:    viper.GetString("SMTP_HOST"),
			Port:    viper.GetString("SMTP_PORT"),
			From:    viper.GetString("SMTP_FROM"),
		},
	}
}
