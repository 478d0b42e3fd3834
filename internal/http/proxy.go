package httpx

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/target/quiz-ui/internal/apiclient"
	apperrors "github.com/target/quiz-ui/internal/errors"
)

// DefaultAPIPrefix is where the backend is mounted on the web front.
const DefaultAPIPrefix = "/api"

// ProxyConfig configures the backend reverse proxy.
type ProxyConfig struct {
	Client *apiclient.Client // Required
	Prefix string
	Logger *slog.Logger
}

// NewAPIProxy forwards <prefix>/* to the backend under the same rules as every other
// backend call: the session's Authorization header and a request id are attached, the
// backend's cookies stay in the client's jar, and a 401 answer signs the session out.
// Inbound cookies and Authorization headers are never forwarded.
func NewAPIProxy(cfg ProxyConfig) http.Handler {
	if cfg.Client == nil {
		panic("NewAPIProxy: Client is required")
	}
	prefix := strings.TrimRight(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	target := client.BaseURL()
	hc := client.HTTPClient()

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			path := strings.TrimPrefix(pr.In.URL.Path, prefix)
			if path == "" {
				path = "/"
			}
			pr.Out.URL.Path = path
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)

			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			client.ApplyHeaders(pr.Out.Header)
			if hc.Jar != nil {
				for _, c := range hc.Jar.Cookies(pr.Out.URL) {
					pr.Out.AddCookie(c)
				}
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			if hc.Jar != nil {
				if cookies := resp.Cookies(); len(cookies) > 0 {
					hc.Jar.SetCookies(resp.Request.URL, cookies)
				}
			}
			resp.Header.Del("Set-Cookie")
			client.ReportStatus(resp.Request.Context(), resp.StatusCode, resp.Request.Header)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WarnContext(r.Context(), "backend proxy failed", "path", r.URL.Path, "error", err)
			WriteAppError(w, apperrors.Network(err, "backend unavailable"))
		},
		Transport: hc.Transport,
	}
}
