package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEvents decodes the data line of each SSE "session" event onto out.
func readEvents(body *bufio.Reader, out chan<- map[string]any) {
	defer close(out)
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			return
		}
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var ev map[string]any
		if json.Unmarshal([]byte(data), &ev) == nil {
			out <- ev
		}
	}
}

func waitForState(t *testing.T, events <-chan map[string]any, want string) map[string]any {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed before state %q", want)
			if ev["state"] == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %q event received", want)
		}
	}
}

func TestEvents_StreamFollowsSession(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/auth/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan map[string]any, 16)
	go readEvents(bufio.NewReader(resp.Body), events)

	waitForState(t, events, "anonymous")

	app.login(t, "admin@b.com", "secret2")
	ev := waitForState(t, events, "authenticated_admin")
	user, ok := ev["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "admin@b.com", user["email"])

	require.NoError(t, app.svc.Logout(context.Background()))
	waitForState(t, events, "anonymous")
}

func TestEvents_UnsubscribesOnDisconnect(t *testing.T) {
	feed := &countingFeed{}
	h := &EventHandlers{Sessions: feed, KeepAlive: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/auth/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Stream(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return feed.active() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, feed.active())
}
