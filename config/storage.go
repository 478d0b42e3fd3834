package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StorageBackend selects where session slots live.
type StorageBackend string

const (
	// StorageFile keeps slots in a local directory shared by processes on one host.
	StorageFile StorageBackend = "file"
	// StorageRedis keeps slots in Redis shared by instances on any host.
	StorageRedis StorageBackend = "redis"
	// StorageMemory keeps slots in process; nothing survives a restart.
	StorageMemory StorageBackend = "memory"
)

// StorageConfig configures durable session storage.
type StorageConfig struct {
	Backend StorageBackend `env:"STORAGE_BACKEND" envDefault:"file"`
	// Dir is the directory for the file backend. Empty means the user config dir.
	Dir string `env:"STORAGE_DIR"`
	// Prefix namespaces keys in shared backends.
	Prefix       string        `env:"STORAGE_PREFIX"        envDefault:"quiz-ui:"`
	// PollInterval is the file backend's rescan period when it polls.
	PollInterval time.Duration `env:"STORAGE_POLL_INTERVAL" envDefault:"1s"`
	// ForcePolling makes the file backend poll instead of using filesystem
	// notifications, which network filesystems often do not deliver.
	ForcePolling bool `env:"STORAGE_FORCE_POLLING" envDefault:"false"`
}

// Sanitize falls back to the file backend for unknown values and resolves the directory.
func (c *StorageConfig) Sanitize() {
	c.Backend = StorageBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	switch c.Backend {
	case StorageFile, StorageRedis, StorageMemory:
	default:
		c.Backend = StorageFile
	}

	c.Dir = strings.TrimSpace(c.Dir)
	if c.Dir == "" {
		c.Dir = defaultStorageDir()
	}
	if c.PollInterval < 50*time.Millisecond {
		c.PollInterval = 50 * time.Millisecond
	}
}

func defaultStorageDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "quiz-ui", "session")
	}
	return filepath.Join(os.TempDir(), "quiz-ui", "session")
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	Channel            string   `env:"CHANNEL"              envDefault:"quiz-ui:storage-events"`
	SentinelNodes      []string `env:"SENTINEL_NODES"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
}

// Sanitize trims connection strings and disables sentinel without nodes.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	c.Channel = strings.TrimSpace(c.Channel)
	if c.DB < 0 {
		c.DB = 0
	}
	nodes := c.SentinelNodes[:0]
	for _, n := range c.SentinelNodes {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	c.SentinelNodes = nodes
	if len(c.SentinelNodes) == 0 {
		c.UseSentinel = false
	}
}
