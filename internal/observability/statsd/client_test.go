package statsd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		metric string
		base   map[string]string
		extra  map[string]string
		want   string
	}{
		{name: "bare", metric: "auth.operation", want: "auth.operation:1|c"},
		{name: "prefixed", prefix: "quiz_ui", metric: "auth.operation", want: "quiz_ui.auth.operation:1|c"},
		{name: "unsafe characters", metric: " session/cleared:x ", want: "session_cleared_x:1|c"},
		{name: "collapsed dots", metric: "..a..b..", want: "a.b:1|c"},
		{name: "empty name", metric: "  ", want: ""},
		{
			name:   "tags merged and sorted",
			metric: "auth.operation",
			base:   map[string]string{"env": "prod", " service ": " quiz-ui "},
			extra:  map[string]string{"op": " login ", "": "ignored", "env": "stage"},
			want:   "auth.operation:1|c|#env:stage,op:login,service:quiz-ui",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatLine(tt.prefix, tt.metric, "1", "c", tt.base, tt.extra))
		})
	}
}

func TestNewClient_DisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	c, err := NewClient(context.Background(), Config{Address: "   "})
	require.NoError(t, err)
	assert.Nil(t, c)

	// A nil client discards everything.
	c.Count("x", 1, nil)
	c.Gauge("x", 1, nil)
	c.Timing("x", time.Second, nil)
	assert.NoError(t, c.Close())
}

func TestClient_WritesDatagrams(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	c, err := NewClient(context.Background(), Config{
		Address: pc.LocalAddr().String(),
		Prefix:  ".quiz_ui.",
		Tags:    map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	require.NotNil(t, c)

	read := func() string {
		t.Helper()
		buf := make([]byte, 512)
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, readErr := pc.ReadFrom(buf)
		require.NoError(t, readErr)
		return string(buf[:n])
	}

	c.Count("auth.operation", 1, map[string]string{"op": "login"})
	assert.Equal(t, "quiz_ui.auth.operation:1|c|#env:test,op:login", read())

	c.Gauge("session.authenticated", 1, nil)
	assert.Equal(t, "quiz_ui.session.authenticated:1|g|#env:test", read())

	c.Timing("auth.duration", 1500*time.Microsecond, nil)
	assert.Equal(t, "quiz_ui.auth.duration:1.5|ms|#env:test", read())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	c.Count("after.close", 1, nil)
}
