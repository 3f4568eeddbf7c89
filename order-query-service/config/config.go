package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	sharedinfra "github.com/draftea/order-fulfillment/shared/infrastructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	ServiceName string                        `mapstructure:"service_name"`
	Env         string                        `mapstructure:"env"`
	Port        string                        `mapstructure:"port"`
	Log         Log                           `mapstructure:"log"`
	Database    sharedinfra.DatabaseConfig    `mapstructure:"database"`
	Redis       sharedinfra.RedisConfig       `mapstructure:"redis"`
	Channel     sharedinfra.ChannelConfig     `mapstructure:"channel"`
	Idempotency sharedinfra.IdempotencyConfig `mapstructure:"idempotency"`
	Projector   Projector                     `mapstructure:"projector"`
	Telemetry   Telemetry                     `mapstructure:"telemetry"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Projector struct {
	GapPolicy    string        `mapstructure:"gap_policy"`
	MaxBuffered  int           `mapstructure:"max_buffered"`
	MaxBufferAge time.Duration `mapstructure:"max_buffer_age"`
}

type Telemetry struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ReadConfig loads <ENVIRONMENT>.json from this directory when present and
// applies ORDER_QUERY_ prefixed environment overrides.
func ReadConfig() (*Config, error) {
	v := viper.New()

	if _, filename, _, ok := runtime.Caller(0); ok {
		v.AddConfigPath(filepath.Dir(filename))
	}
	v.AddConfigPath("./order-query-service/config")
	v.SetConfigName(getConfigName())
	v.SetConfigType("json")

	v.SetEnvPrefix("ORDER_QUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}

	return &config, nil
}

func getConfigName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "order-query-service")
	v.SetDefault("env", "local")
	v.SetDefault("port", "8081")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", sharedinfra.StorageDriverMemory)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "order_fulfillment")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("channel.driver", sharedinfra.ChannelDriverMemory)
	v.SetDefault("channel.partitions", 8)
	v.SetDefault("channel.max_redeliveries", 5)
	v.SetDefault("channel.aws.region", "us-east-1")
	v.SetDefault("channel.aws.endpoint_sns", "")
	v.SetDefault("channel.aws.endpoint_sqs", "")
	v.SetDefault("channel.aws.sns_topic_arn", "arn:aws:sns:us-east-1:000000000000:order-events.fifo")
	v.SetDefault("channel.aws.sqs_queue_url", "http://localhost:4566/000000000000/order-query-service.fifo")
	v.SetDefault("channel.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("channel.kafka.topic", "order-events")
	v.SetDefault("channel.kafka.group_id", "order-query-service")

	v.SetDefault("idempotency.driver", sharedinfra.StorageDriverMemory)
	v.SetDefault("idempotency.retention", 7*24*time.Hour)
	v.SetDefault("idempotency.purge_interval", time.Hour)

	v.SetDefault("projector.gap_policy", "buffer")
	v.SetDefault("projector.max_buffered", 100)
	v.SetDefault("projector.max_buffer_age", "10m")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", "")
}
