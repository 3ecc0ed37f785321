// Package httpapi — HTTP API витрины: каталог и заказы.
package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"
	"github.com/unrolled/secure"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/metrics"
	"github.com/vladislavdragonenkov/filmstore/internal/service/placement"
)

const (
	defaultOrderRateLimit = 120
	maxRequestBodyBytes   = 1 << 20
	handlerTimeout        = 15 * time.Second
)

// Catalog — операции каталога, нужные API.
type Catalog interface {
	Add(ctx context.Context, film domain.Film) (domain.Film, error)
	Get(ctx context.Context, id string) (domain.Film, bool, error)
	List(ctx context.Context) ([]domain.Film, error)
	Update(ctx context.Context, film domain.Film) (domain.Film, error)
}

// OrderReader — чтение заказов.
type OrderReader interface {
	FindAll(ctx context.Context) ([]domain.Order, error)
	Find(ctx context.Context, id string) (domain.Order, bool, error)
}

// OrderPlacer размещает заказы.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, candidate domain.Order) (placement.Placement, error)
}

// Options задаёт параметры API.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.HTTPMetrics
	// CORSAllowedOrigins — список origin через запятую; пусто означает "*".
	CORSAllowedOrigins string
	// OrderRateLimit — число POST /orders в минуту с одного IP; 0 означает значение по умолчанию.
	OrderRateLimit int
	IsDevelopment  bool
}

// API связывает HTTP-маршруты с сервисами.
type API struct {
	catalog Catalog
	orders  OrderReader
	placer  OrderPlacer
	logger  *log.Entry
	metrics *metrics.HTTPMetrics
	opts    Options
}

// New создаёт API.
func New(catalog Catalog, orders OrderReader, placer OrderPlacer, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	if opts.OrderRateLimit <= 0 {
		opts.OrderRateLimit = defaultOrderRateLimit
	}

	return &API{
		catalog: catalog,
		orders:  orders,
		placer:  placer,
		logger:  logger,
		metrics: opts.Metrics,
		opts:    opts,
	}
}

// Routes возвращает chi-роутер со стандартным набором middleware.
func (a *API) Routes() http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		IsDevelopment:      a.opts.IsDevelopment,
	})

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		a.accessLog,
		a.recoverer,
		corsMiddleware(a.opts.CORSAllowedOrigins),
		bodyLimit(maxRequestBodyBytes),
		middleware.Timeout(handlerTimeout),
		sec.Handler,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/films", func(r chi.Router) {
		r.Get("/", a.listFilms)
		r.Post("/", a.createFilm)
		r.Get("/{id}", a.getFilm)
		r.Put("/{id}", a.updateFilm)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", a.listOrders)
		r.Get("/{id}", a.getOrder)
		r.With(httprate.Limit(
			a.opts.OrderRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "too many orders, retry later")
			}),
		)).Post("/", a.placeOrder)
	})

	return r
}

func (a *API) requestLogger(r *http.Request) *log.Entry {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return a.logger.WithField("request_id", id)
	}
	return a.logger
}

// accessLog пишет одну строку на запрос и обновляет HTTP-метрики.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if a.metrics != nil {
			a.metrics.RequestStarted()
		}

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)

		if a.metrics != nil {
			a.metrics.RequestFinished(r.Method, route, status, duration)
		}

		a.requestLogger(r).WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      status,
			"latency_ms":  duration.Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("http request")
	})
}

func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			a.requestLogger(r).WithFields(log.Fields{
				"panic": rec,
				"stack": string(debug.Stack()),
			}).Error("http handler panic")
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}()
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(allowedOrigins string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: parseOrigins(allowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Location", "X-Request-Id"},
		MaxAge:         300,
	})
}

func parseOrigins(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p := strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func bodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// NewServer возвращает http.Server с таймаутами.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
