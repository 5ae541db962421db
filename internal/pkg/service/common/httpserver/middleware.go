package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/negroni"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/price-tracker/internal/pkg/ctxattr"
	"github.com/keboola/price-tracker/internal/pkg/idgenerator"
	"github.com/keboola/price-tracker/internal/pkg/log"
)

const RequestIDHeader = "X-Request-Id"

// requestInfo sets the request ID to the context and to the response header.
func requestInfo() negroni.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		requestID := idgenerator.RequestID()
		w.Header().Set(RequestIDHeader, requestID)
		ctx := ctxattr.ContextWith(req.Context(), attribute.String("http.request_id", requestID))
		next(w, req.WithContext(ctx))
	}
}

// accessLog logs each request, successful requests are logged in the debug level.
func accessLog(logger log.Logger) negroni.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		started := time.Now()
		next(w, req)

		status := http.StatusOK
		if rw, ok := w.(negroni.ResponseWriter); ok {
			status = rw.Status()
		}

		l := logger.WithDuration(time.Since(started)).With(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.Path),
			attribute.Int("http.status", status),
		)
		if status >= http.StatusInternalServerError {
			l.Warn(req.Context(), `req "<http.method> <http.path>" status=<http.status>`)
		} else {
			l.Debug(req.Context(), `req "<http.method> <http.path>" status=<http.status>`)
		}
	}
}

// recoveryLogger writes negroni recovery messages to the logger.
type recoveryLogger struct {
	logger log.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error(context.Background(), fmt.Sprint(v...))
}

func (l recoveryLogger) Printf(format string, v ...any) {
	l.logger.Errorf(context.Background(), format, v...)
}
