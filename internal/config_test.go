package internal

import (
	"testing"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)

	req.NoError(config.Validate())
	req.Equal("127.0.0.1:8000", config.RelayAddress())
	req.Equal(16, config.FanoutCapacity)
	req.Equal(5*time.Second, config.PersistTimeout)
	req.Equal(DriverBadger, config.StorageDriver)
	req.Nil(config.LimitMessages)
}

func TestConfig_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("RELAY_PORT", "9000")
	t.Setenv("FANOUT_CAPACITY", "64")
	t.Setenv("LIMIT_MESSAGES", "50")
	t.Setenv("STORAGE_DRIVER", "mysql")
	t.Setenv("DB_USER", "relay")
	t.Setenv("DB_NAME", "chat")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)

	req.NoError(config.Validate())
	req.Equal("127.0.0.1:9000", config.RelayAddress())
	req.Equal(64, config.FanoutCapacity)
	req.Equal(50, *config.LimitMessages)
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"STORAGE_DRIVER": "sqlite"}},
		{name: "mysql without credentials", env: map[string]string{"STORAGE_DRIVER": "mysql"}},
		{name: "postgres without url", env: map[string]string{"STORAGE_DRIVER": "postgres"}},
		{name: "empty fanout", env: map[string]string{"FANOUT_CAPACITY": "0"}},
		{name: "unknown level", env: map[string]string{"LOG_LEVEL": "TRACE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var config Config
			_, err := env.UnmarshalFromEnviron(&config)
			require.NoError(t, err)
			require.Error(t, config.Validate())
		})
	}
}

func TestClientConfig_RequiresUserAndRoom(t *testing.T) {
	req := require.New(t)

	var config ClientConfig
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)
	req.Error(config.Validate())

	config.User, config.RoomID = "alice", 7
	req.NoError(config.Validate())
}
