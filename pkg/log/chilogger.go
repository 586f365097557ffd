package log

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/kubev2v/build-orchestrator/pkg/requestid"
	"go.uber.org/zap"
)

// Logger returns an access log middleware writing one entry per request to the named zap logger.
// Probe endpoints are logged at debug level so they do not drown the build traffic.
func Logger(l *zap.Logger, name string) func(next http.Handler) http.Handler {
	if l == nil {
		panic("log.Logger received a nil *zap.Logger")
	}

	logger := l.WithOptions(zap.AddCallerSkip(1)).Named(name)

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()

			defer func() {
				statusCode := ww.Status()
				fields := []zap.Field{
					zap.String("request_id", requestid.FromRequest(r)),
					zap.String("http_method", r.Method),
					zap.String("http_path", r.URL.Path),
					zap.String("http_query", r.URL.RawQuery),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Int("http_status_code", statusCode),
					zap.Int("response_bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(t1)),
				}

				msg := fmt.Sprintf("%s %s %s", r.Method, r.URL.Path, statusLabel(statusCode))

				switch {
				case statusCode >= 500:
					logger.Error(msg, fields...)
				case statusCode >= 400:
					logger.Warn(msg, fields...)
				case isProbe(r.Method, r.URL.Path):
					logger.Debug(msg, fields...)
				default:
					logger.Info(msg, fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

func isProbe(method string, path string) bool {
	return method == http.MethodGet && (path == "/health" || path == "/metrics")
}

func statusLabel(status int) string {
	switch {
	case status >= 100 && status < 300:
		return fmt.Sprintf("%d OK", status)
	case status >= 300 && status < 400:
		return fmt.Sprintf("%d Redirect", status)
	case status >= 400 && status < 500:
		return fmt.Sprintf("%d Client Error", status)
	case status >= 500:
		return fmt.Sprintf("%d Server Error", status)
	default:
		return fmt.Sprintf("%d Unknown", status)
	}
}
