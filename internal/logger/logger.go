package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	ihttp "github.com/wolfeidau/caseguard/internal/http"
)

func Setup(debug bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if debug {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// HTTPRequests injects a request scoped logger into the context and logs
// each completed request. It expects the request id and client ip
// middleware to run first.
type HTTPRequests struct {
	logger zerolog.Logger
}

func NewHTTPRequests(logger zerolog.Logger) *HTTPRequests {
	return &HTTPRequests{logger: logger}
}

func (h *HTTPRequests) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		ctx := h.logger.With().
			Str("request_id", ihttp.RequestIDFromContext(r.Context())).
			Str("client_ip", ihttp.ClientIPFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger().WithContext(r.Context())

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		var evt *zerolog.Event
		switch {
		case sw.status >= http.StatusInternalServerError:
			evt = zerolog.Ctx(ctx).Error()
		case sw.status >= http.StatusBadRequest:
			evt = zerolog.Ctx(ctx).Warn()
		default:
			evt = zerolog.Ctx(ctx).Info()
		}

		evt.Int("status", sw.status).
			Int64("bytes", sw.written).
			Dur("duration", time.Since(started)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
