package rest

import "time"

type Config struct {
	Address      string        `env:"RUN_ADDRESS" envDefault:":8080"`
	Secret       string        `env:"SECRET_KEY" envDefault:"secret_key"`
	AdminKeyHash string        `env:"ADMIN_KEY_HASH"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:","`
	RateLimit    float64       `env:"RATE_LIMIT" envDefault:"5"`
	RateBurst    int           `env:"RATE_BURST" envDefault:"10"`
	ShutdownWait time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}
