package config

import "strings"

// StatsDConfig mirrors session metrics to a StatsD listener. An empty Addr disables it.
type StatsDConfig struct {
	Addr   string `env:"STATSD_ADDR"   envDefault:""`
	Prefix string `env:"STATSD_PREFIX" envDefault:"quiz_ui"`
	// Tags is a comma-delimited list of key:value pairs added to every line.
	Tags map[string]string `env:"STATSD_TAGS" envKeyValSeparator:":"`
}

// Sanitize trims the address and prefix.
func (c *StatsDConfig) Sanitize() {
	c.Addr = strings.TrimSpace(c.Addr)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
}
