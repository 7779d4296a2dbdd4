package config

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv             string `env:"APP_ENV" envDefault:"dev"`
	APIAddr            string `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN        string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr          string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	MigrationsDir      string `env:"MIGRATIONS_DIR" envDefault:"internal/storage/migrations"`
	WorkerConcurrency  int    `env:"WORKER_CONCURRENCY" envDefault:"4"`
	ShutdownTimeoutSec int    `env:"SHUTDOWN_TIMEOUT_SEC" envDefault:"10"`
}

func Load() Config {
	// .env is a local-dev convenience; absence is fine.
	_ = godotenv.Load()

	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}
