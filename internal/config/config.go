/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables (with an
 * optional .env file), providing a centralized way to manage settings for the
 * HTTP server, database, message broker, and the M-Pesa Daraja credentials.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`

	JWTSecret      string `mapstructure:"JWT_SECRET"`
	JWTExpiryHours int    `mapstructure:"JWT_EXPIRY_HOURS"`

	DarajaBaseURL        string `mapstructure:"DARAJA_BASE_URL"`
	DarajaConsumerKey    string `mapstructure:"DARAJA_CONSUMER_KEY"`
	DarajaConsumerSecret string `mapstructure:"DARAJA_CONSUMER_SECRET"`
	DarajaShortCode      string `mapstructure:"DARAJA_SHORT_CODE"`
	DarajaPassKey        string `mapstructure:"DARAJA_PASS_KEY"`

	// CallbackBaseURL is the public base URL the provider posts callbacks to;
	// CallbackToken is appended as a path segment and checked before any
	// callback is processed.
	CallbackBaseURL string `mapstructure:"CALLBACK_BASE_URL"`
	CallbackToken   string `mapstructure:"CALLBACK_TOKEN"`

	PremiumPriceKES           int64 `mapstructure:"PREMIUM_PRICE_KES"`
	PaymentRateLimitPerMinute int   `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`

	StalePaymentSweepSpec     string `mapstructure:"STALE_PAYMENT_SWEEP_SPEC"`
	StalePaymentCutoffMinutes int    `mapstructure:"STALE_PAYMENT_CUTOFF_MINUTES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "frankquiz:rate_limit")
	viper.SetDefault("JWT_EXPIRY_HOURS", 24)
	viper.SetDefault("DARAJA_BASE_URL", "https://sandbox.safaricom.co.ke")
	viper.SetDefault("PREMIUM_PRICE_KES", 100)
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 5)
	viper.SetDefault("STALE_PAYMENT_SWEEP_SPEC", "@every 10m")
	viper.SetDefault("STALE_PAYMENT_CUTOFF_MINUTES", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_EXPIRY_HOURS")
	_ = viper.BindEnv("DARAJA_BASE_URL")
	_ = viper.BindEnv("DARAJA_CONSUMER_KEY")
	_ = viper.BindEnv("DARAJA_CONSUMER_SECRET")
	_ = viper.BindEnv("DARAJA_SHORT_CODE")
	_ = viper.BindEnv("DARAJA_PASS_KEY")
	_ = viper.BindEnv("CALLBACK_BASE_URL")
	_ = viper.BindEnv("CALLBACK_TOKEN")
	_ = viper.BindEnv("PREMIUM_PRICE_KES")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("STALE_PAYMENT_SWEEP_SPEC")
	_ = viper.BindEnv("STALE_PAYMENT_CUTOFF_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	return
}
