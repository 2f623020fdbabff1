package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_DEBUG_FRAMES logs every frame read or written by the test peers
	DebugFrames bool `envconfig:"E2E_DEBUG_FRAMES" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours        bool `envconfig:"E2E_COLOURS" default:"true"`
	FanoutCapacity int  `envconfig:"E2E_FANOUT_CAPACITY" default:"16"`
	// E2E_SILENCE is how long a peer waits before asserting nothing arrived
	Silence time.Duration `envconfig:"E2E_SILENCE" default:"200ms"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
