package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// NewRouter wires the API and live feed onto one handler. With no allowed
// origins configured, cross-origin requests are not granted.
func NewRouter(api *APIHandler, live http.Handler, allowedOrigins []string, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", api.HandleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", api.HandleHealth).Methods(http.MethodGet)

	r.HandleFunc("/sensor-data", api.HandlePostSensorData).Methods(http.MethodPost)
	r.HandleFunc("/sensor-data", api.HandleGetSensorData).Methods(http.MethodGet)
	r.HandleFunc("/sensor-data/history", api.HandleSensorHistory).Methods(http.MethodGet)
	r.HandleFunc("/sensor-data/daily", api.HandleDailyStats).Methods(http.MethodGet)

	r.HandleFunc("/device-status", api.HandlePostDeviceStatus).Methods(http.MethodPost)
	r.HandleFunc("/device-status", api.HandleGetDeviceStatus).Methods(http.MethodGet)

	if live != nil {
		r.Handle("/live", live).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(api.HandleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(api.HandleMethodNotAllowed)
	r.Use(requestLogger(logger))
	r.Use(handlers.RecoveryHandler(handlers.RecoveryLogger(panicLogger{logger})))

	if len(allowedOrigins) == 0 {
		return r
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// statusRecorder captures the response code for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack passes through so /live can upgrade behind the logger
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// panicLogger routes recovered handler panics into zerolog
type panicLogger struct {
	logger zerolog.Logger
}

func (p panicLogger) Println(v ...interface{}) {
	p.logger.Error().Str("component", "http").Msg(fmt.Sprint(v...))
}

func requestLogger(logger zerolog.Logger) mux.MiddlewareFunc {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("took", time.Since(start)).
				Msg("Request handled")
		})
	}
}
