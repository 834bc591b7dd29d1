package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTP   HTTPServer `envPrefix:"HTTP_"`
	Log    Log
	Paths  Paths
	Admin  Admin
	Stripe Stripe   `envPrefix:"STRIPE_"`
	SMTP   SMTP     `envPrefix:"SMTP_"`
	Mail   MailAddr `envPrefix:"NOTIFY_EMAIL_"`
	Kafka  Kafka    `envPrefix:"KAFKA_"`
}

type HTTPServer struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port string `env:"PORT" envDefault:"8080"`
}

type Log struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type Paths struct {
	// OrdersDir holds one JSON record per order; archived records live in
	// its "archive" subdirectory.
	OrdersDir string `env:"ORDERS_DIR" envDefault:"data/orders"`
	// OutputDir is the shared face-swap generation workspace.
	OutputDir string `env:"FACESWAP_OUTPUT_DIR" envDefault:"faceswap/output"`
	// OrderFilesDir holds the durable per-order artifact copies.
	OrderFilesDir string `env:"ORDER_FILES_DIR" envDefault:"faceswap/orders"`
}

type Admin struct {
	// TokenHash is a bcrypt hash of the operator bearer token. When empty
	// every admin request is rejected.
	TokenHash string `env:"ADMIN_TOKEN_HASH"`
}

type Stripe struct {
	BaseAPIURL    string `env:"BASE_API_URL" envDefault:"https://api.stripe.com"`
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"`
	User     string `env:"USER"`
	Password string `env:"PASS"`
}

type MailAddr struct {
	From string `env:"FROM"`
	To   string `env:"TO"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"order-events"`
}

// Load reads a local .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
