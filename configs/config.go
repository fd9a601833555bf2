package configs

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerPort             string `envconfig:"SERVER_PORT" default:"8080"`
	ServerTimeOutInSeconds int64  `envconfig:"SERVER_TIME_OUT_IN_SECONDS" default:"5"`
	Database               DatabaseConfig
	RabbitMQ               RabbitMQConfig
	Redis                  RedisConfig
	JWT                    JWTConfig
	ObjectStore            ObjectStoreConfig
	Worker                 WorkerConfig
	Recovery               RecoveryConfig
}

type DatabaseConfig struct {
	Username     string `envconfig:"DB_USERNAME"`
	Password     string `envconfig:"DB_PASSWORD"`
	Host         string `envconfig:"DB_HOST"`
	Port         string `envconfig:"DB_PORT"`
	Database     string `envconfig:"DB_DATABASE"`
	DatabaseTest string `envconfig:"DB_DATABASE_TEST"`
	SSLMode      string `envconfig:"DB_SSL_MODE" default:"require"`
	PoolMaxConns int    `envconfig:"DB_POOL_MAX_CONNS" default:"4"`
}

type RabbitMQConfig struct {
	Username        string `envconfig:"RABBIT_USERNAME"`
	Password        string `envconfig:"RABBIT_PASSWORD"`
	Host            string `envconfig:"RABBIT_HOST"`
	Port            string `envconfig:"RABBIT_PORT"`
	EventsQueueName string `envconfig:"TASK_EVENTS_QUEUE_NAME" default:"task_events"`
}

type RedisConfig struct {
	Username string `envconfig:"REDIS_USERNAME"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	DBIndex  int32  `envconfig:"REDIS_DB_INDEX"`
}

type JWTConfig struct {
	Secret      string `envconfig:"JWT_SECRET"`
	ExpiryHours int    `envconfig:"JWT_EXPIRY_HOURS" default:"24"`
}

type ObjectStoreConfig struct {
	Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	Bucket          string `envconfig:"S3_BUCKET"`
	Endpoint        string `envconfig:"S3_ENDPOINT"`
	AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	PresignExpiryS  int64  `envconfig:"S3_PRESIGN_EXPIRY_SECONDS" default:"900"`
}

type WorkerConfig struct {
	ServerURL           string `envconfig:"WORKER_SERVER_URL" default:"http://localhost:8080"`
	Token               string `envconfig:"WORKER_TOKEN"`
	PollIntervalSeconds int64  `envconfig:"WORKER_POLL_INTERVAL_SECONDS" default:"5"`
	TaskTypeFilter      string `envconfig:"WORKER_TASK_TYPE_FILTER"`
}

type RecoveryConfig struct {
	LockKey     string `envconfig:"RECOVERY_LOCK_KEY" default:"lock:task_recovery"`
	LockSeconds int64  `envconfig:"RECOVERY_LOCK_SECONDS" default:"60"`
}

// ToMigrationUri returns a string specifically for the migration package with the right prefix
func (d DatabaseConfig) ToMigrationUri() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
	)
}

// ToTestMigrationUri returns a string specifically for the migration package with the right prefix for test database
func (d DatabaseConfig) ToTestMigrationUri() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DatabaseTest,
		d.SSLMode,
	)
}

// ToDbConnectionUri returns a connection URI to be used with the pgx package
func (d DatabaseConfig) ToDbConnectionUri() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
		d.PoolMaxConns,
	)
}

// ToTestDBConnectionUri returns a string specifically for running the integration tests
func (d DatabaseConfig) ToTestDBConnectionUri() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DatabaseTest,
		d.SSLMode,
		d.PoolMaxConns,
	)
}

// ToRabbitConnectionUri returns a connection URI to be used with the rabbitmq/amqp091-go package
func (d RabbitMQConfig) ToRabbitConnectionUri() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
	)
}

// ToRedisConnectionUri returns a connection URI to be used with the redis/go-redis/v9 package
func (d RedisConfig) ToRedisConnectionUri() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DBIndex,
	)
}

// Validate fails fast on a missing or weak signing secret.
func (j JWTConfig) Validate() error {
	if len(j.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(j.Secret))
	}
	return nil
}

func InitConfig() *Config {
	err := godotenv.Load()

	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Unable to load .env %v", err)
	}

	var cfg Config
	err = envconfig.Process("", &cfg)
	if err != nil {
		fmt.Print("Cannot load env")
	}

	return &cfg
}
