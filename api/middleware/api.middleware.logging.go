package middleware

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	nuts "github.com/vaudience/go-nuts"
)

// RequestLogger logs one line per request through the service logger
func RequestLogger(next http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p handlers.LogFormatterParams) {
		nuts.L.Debugf("[HTTP] %s %s -> %d (%d bytes)", p.Request.Method, p.URL.RequestURI(), p.StatusCode, p.Size)
	})
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	nuts.L.Errorf("[HTTP] Recovered from panic: %s", fmt.Sprint(v...))
}

// Recovery turns handler panics into 500 responses
func Recovery(next http.Handler) http.Handler {
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(next)
}

// CORS allows the configured origins to call the API
func CORS(origins []string) func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
}
