// Package statsd mirrors session metrics to a StatsD (DogStatsD tag dialect) listener over UDP.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const dialTimeout = 5 * time.Second

// Sink receives StatsD-style measurements.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes the StatsD endpoint. An empty Address disables the client.
type Config struct {
	Address string
	Prefix  string
	// Tags are attached to every line; per-call tags win on conflicts.
	Tags   map[string]string
	Logger *slog.Logger
}

// Client writes one datagram per measurement. Write errors are logged at debug and
// dropped. It is safe for concurrent use and a nil *Client discards everything.
type Client struct {
	prefix string
	tags   map[string]string
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials the endpoint. It returns a nil client and no error when disabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}

	return &Client{
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
		tags:   cleanTags(cfg.Tags),
		logger: logger,
		conn:   conn,
	}, nil
}

// Count adds value to a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge sets a gauge.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.send(name, strconv.FormatFloat(value, 'f', -1, 64), "g", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.send(name, strconv.FormatFloat(ms, 'f', -1, 64), "ms", tags)
}

// Close releases the socket. Later measurements are discarded.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line := formatLine(c.prefix, name, value, kind, c.tags, tags)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}

// formatLine renders "<prefix>.<name>:<value>|<kind>|#k:v,..." with tags sorted by key.
func formatLine(prefix, name, value, kind string, base, extra map[string]string) string {
	metric := metricName(prefix, name)
	if metric == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)

	merged := cleanTags(base)
	for k, v := range cleanTags(extra) {
		merged[k] = v
	}
	if len(merged) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("|#")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
	}
	return b.String()
}

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "|", "_")

func metricName(prefix, name string) string {
	n := nameReplacer.Replace(strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	n = strings.Trim(n, ".")
	if n == "" {
		return ""
	}
	if prefix == "" {
		return n
	}
	return prefix + "." + n
}

// cleanTags copies tags, trimming keys and values and dropping empty keys.
func cleanTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}
