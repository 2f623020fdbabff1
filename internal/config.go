package internal

import (
	"chat-relay/errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DriverBadger   = "badger"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	RelayHost            string        `env:"RELAY_HOST,default=127.0.0.1" validate:"required"`
	RelayPort            int           `env:"RELAY_PORT,default=8000" validate:"min=0,max=65535"`
	HealthPort           int           `env:"HEALTH_PORT,default=8001" validate:"min=0,max=65535"`
	DebugMode            bool          `env:"DEBUG_MODE,default=false"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081" validate:"min=0,max=65535"`
	CorsOrigins          []string      `env:"CORS_ORIGINS,default=*"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	FanoutCapacity       int           `env:"FANOUT_CAPACITY,default=16" validate:"min=1"`
	MaxFrameSize         int64         `env:"MAX_FRAME_SIZE,default=65536" validate:"min=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	PersistTimeout       time.Duration `env:"PERSIST_TIMEOUT,default=5s" validate:"gt=0"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s" validate:"gt=0"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=4" validate:"min=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	StorageDriver  string `env:"STORAGE_DRIVER,default=badger" validate:"oneof=badger mysql postgres"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger" validate:"required_if=StorageDriver badger"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES" validate:"omitempty,min=1"`
	DBUser         string `env:"DB_USER" validate:"required_if=StorageDriver mysql"`
	DBPassword     string `env:"DB_PASSWORD"`
	DBHost         string `env:"DB_HOST,default=127.0.0.1:3306" validate:"required_if=StorageDriver mysql"`
	DBName         string `env:"DB_NAME" validate:"required_if=StorageDriver mysql"`
	DBMigrate      bool   `env:"DB_MIGRATE,default=true"`
	PGURL          string `env:"PG_URL" validate:"required_if=StorageDriver postgres"`
}

// ClientConfig configures the line client.
type ClientConfig struct {
	RelayURL     string        `env:"RELAY_URL,default=ws://127.0.0.1:8000" validate:"required,url"`
	User         string        `env:"RELAY_USER" validate:"required"`
	RoomID       uint32        `env:"RELAY_ROOM_ID" validate:"required"`
	LogLevel     string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverBadger, DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", errors.ErrUnknownStorageDriver, c.StorageDriver)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid relay config: %w", err)
	}
	return nil
}

func (c ClientConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}

func (c Config) RelayAddress() string {
	return net.JoinHostPort(c.RelayHost, strconv.Itoa(c.RelayPort))
}

func (c Config) HealthAddress() string {
	return net.JoinHostPort(c.RelayHost, strconv.Itoa(c.HealthPort))
}
