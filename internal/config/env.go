package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
	Timezone string `envconfig:"TIMEZONE" default:"UTC"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".sitecrew/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"sitecrew/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// DynamoDB settings (used when Type == "dynamodb")
	DynamoTable    string `envconfig:"DYNAMODB_TABLE" default:"sitecrew"`
	DynamoRegion   string `envconfig:"DYNAMODB_REGION" default:"ap-northeast-1"`
	DynamoEndpoint string `envconfig:"DYNAMODB_ENDPOINT"`
}

type AssignmentEnv struct {
	Backend           string        `envconfig:"ASSIGNMENT_BACKEND" default:"storage"`
	LocationFreshness time.Duration `envconfig:"LOCATION_FRESHNESS" default:"2m"`
	LockTimeout       time.Duration `envconfig:"LOCK_TIMEOUT" default:"5s"`
}

type PostgresEnv struct {
	DSN          string `envconfig:"POSTGRES_DSN"`
	MaxOpenConns int    `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"20"`
}

// RedisEnv selects the distributed worker/day lock. Empty Addr keeps the
// in-process lock.
type RedisEnv struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL  time.Duration `envconfig:"REDIS_LOCK_TTL" default:"30s"`
}

type KafkaEnv struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"assignment-events"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@sitecrew.local"`
}

type ProjectsEnv struct {
	SeedFile string `envconfig:"PROJECT_SEED_FILE"`
}

type Env struct {
	BaseEnv
	StorageEnv
	AssignmentEnv
	PostgresEnv
	RedisEnv
	KafkaEnv
	VAPIDEnv
	ProjectsEnv
}

const namespace = "SITECREW"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if _, err := env.Location(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

// Location is the zone used to resolve "today" for workers and dashboards.
func (e *BaseEnv) Location() (*time.Location, error) {
	if e == nil || e.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", e.Timezone, err)
	}
	return loc, nil
}

func (e *VAPIDEnv) Configured() bool {
	return e != nil && e.VAPIDPublicKey != "" && e.VAPIDPrivateKey != ""
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
