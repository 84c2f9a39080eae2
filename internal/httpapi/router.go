package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires every route. ws may be nil when the real-time endpoint
// is not served.
func NewRouter(h *Handler, ws http.Handler, staticDir string, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(cors, accessLog(logger.Named("access")))

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	if ws != nil {
		r.Handle("/ws", ws).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/credit-packages", h.CreditPackages).Methods("GET")
	api.HandleFunc("/templates", h.Templates).Methods("GET")
	api.HandleFunc("/balance/{userId}", h.Balance).Methods("GET")
	api.HandleFunc("/create-payment-intent", h.CreatePaymentIntent).Methods("POST", "OPTIONS")
	api.HandleFunc("/confirm-payment", h.ConfirmPayment).Methods("POST", "OPTIONS")

	r.PathPrefix("/").Handler(spaHandler{dir: staticDir}).Methods("GET", "HEAD")
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// spaHandler serves files from dir and falls back to index.html for
// anything that is not a file.
type spaHandler struct {
	dir string
}

func (s spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(s.dir, filepath.FromSlash(filepath.Clean("/"+strings.TrimPrefix(r.URL.Path, "/"))))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}
	index := filepath.Join(s.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}
