package routes

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crowdsale/core/events"
	"crowdsale/gateway/auth"
	"crowdsale/gateway/middleware"
	"crowdsale/native/crowdsale"
)

// Rate limit keys applied to the route groups.
const (
	LimitPublic   = "public"
	LimitAdmin    = "admin"
	LimitNotify   = "notify"
	LimitInvestor = "investor"
)

// SaleService is the sale node surface the gateway drives.
type SaleService interface {
	Params() crowdsale.Params
	Init(ctx context.Context, p crowdsale.Principal, start, finish int64) ([]crowdsale.Effect, error)
	SetStart(ctx context.Context, p crowdsale.Principal, start int64) error
	SetFinish(ctx context.Context, p crowdsale.Principal, finish int64) error
	SetTime(ctx context.Context, p crowdsale.Principal, ts int64) error
	ChangeList(ctx context.Context, p crowdsale.Principal, list crowdsale.ListKind, member bool, accounts [][20]byte) error
	OnDeposit(ctx context.Context, p crowdsale.Principal, investor [20]byte, amount crowdsale.Quantity) (*crowdsale.Deposit, error)
	SetDaily(ctx context.Context, p crowdsale.Principal, rates crowdsale.Rates, window time.Duration) error
	Withdraw(ctx context.Context, p crowdsale.Principal, investor [20]byte) ([]crowdsale.Effect, error)
	Refund(ctx context.Context, p crowdsale.Principal, investor [20]byte) ([]crowdsale.Effect, error)
	Finalize(ctx context.Context, p crowdsale.Principal) ([]crowdsale.Effect, error)
	Sale() (*crowdsale.Sale, error)
	Deposits(investor [20]byte) ([]*crowdsale.Deposit, error)
	Quote(investor [20]byte) (*crowdsale.Quote, error)
	Quotes() ([]*crowdsale.Quote, error)
	IsListed(list crowdsale.ListKind, account [20]byte) (bool, error)
	Now() (int64, error)
}

// Custody books contributions the engine does not see into the asset ledger.
type Custody interface {
	Credit(ctx context.Context, account [20]byte, amount crowdsale.Quantity) error
}

type Config struct {
	Sale          SaleService
	Authenticator *middleware.Authenticator
	Verifier      *auth.Verifier
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
	// Events enables GET /v1/events when set.
	Events *events.Stream
	// Custody enables POST /v1/notify/secondary when set.
	Custody Custody
	// MetricsHandler defaults to the process-wide Prometheus registry.
	MetricsHandler http.Handler
}

type handlers struct {
	sale           SaleService
	verifier       *auth.Verifier
	events         *events.Stream
	custody        Custody
	originPatterns []string
	logger         *slog.Logger
}

func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := cfg.Observability
	if obs == nil {
		obs = middleware.NewObservability(middleware.ObservabilityConfig{}, logger)
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, logger)
	}
	metrics := cfg.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	h := &handlers{
		sale:           cfg.Sale,
		verifier:       cfg.Verifier,
		events:         cfg.Events,
		custody:        cfg.Custody,
		originPatterns: wsOriginPatterns(cfg.CORS.AllowedOrigins),
		logger:         logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics)

	r.Group(func(pr chi.Router) {
		pr.Use(limiter.Middleware(LimitPublic))
		pr.With(obs.Middleware("sale")).Get("/v1/sale", h.getSale)
		pr.With(obs.Middleware("investor")).Get("/v1/investors/{account}", h.getInvestor)
		if h.events != nil {
			pr.Get("/v1/events", h.streamEvents)
		}
	})

	r.Route("/v1/admin", func(ar chi.Router) {
		ar.Use(limiter.Middleware(LimitAdmin))
		if cfg.Authenticator != nil {
			ar.Use(cfg.Authenticator.Middleware(middleware.ScopeAdmin))
		} else {
			ar.Use(deny)
		}
		ar.With(obs.Middleware("admin.init")).Post("/init", h.init)
		ar.With(obs.Middleware("admin.setstart")).Post("/setstart", h.setStart)
		ar.With(obs.Middleware("admin.setfinish")).Post("/setfinish", h.setFinish)
		ar.With(obs.Middleware("admin.settime")).Post("/settime", h.setTime)
		ar.With(obs.Middleware("admin.white")).Post("/white", h.changeList(crowdsale.ListWhite, true))
		ar.With(obs.Middleware("admin.unwhite")).Post("/unwhite", h.changeList(crowdsale.ListWhite, false))
		ar.With(obs.Middleware("admin.grey")).Post("/grey", h.changeList(crowdsale.ListGrey, true))
		ar.With(obs.Middleware("admin.ungrey")).Post("/ungrey", h.changeList(crowdsale.ListGrey, false))
		ar.With(obs.Middleware("admin.setdaily")).Post("/setdaily", h.setDaily)
		ar.With(obs.Middleware("admin.finalize")).Post("/finalize", h.finalize)
		ar.With(obs.Middleware("admin.report")).Get("/report", h.report)
	})

	r.Group(func(nr chi.Router) {
		nr.Use(limiter.Middleware(LimitNotify))
		if cfg.Authenticator != nil {
			nr.Use(cfg.Authenticator.Middleware(middleware.ScopeNotify))
		} else {
			nr.Use(deny)
		}
		nr.With(obs.Middleware("notify.deposit")).Post("/v1/notify/deposit", h.notifyDeposit)
		if h.custody != nil {
			nr.With(obs.Middleware("notify.secondary")).Post("/v1/notify/secondary", h.notifySecondary)
		}
	})

	r.Group(func(ir chi.Router) {
		ir.Use(limiter.Middleware(LimitInvestor))
		ir.With(obs.Middleware("withdraw")).Post("/v1/withdraw", h.settle("withdraw", cfg.Sale.Withdraw))
		ir.With(obs.Middleware("refund")).Post("/v1/refund", h.settle("refund", cfg.Sale.Refund))
	})

	return r
}

// wsOriginPatterns maps CORS origins onto websocket host patterns. An empty
// list keeps the library's same-origin check.
func wsOriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}

func deny(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "authentication not configured", http.StatusUnauthorized)
	})
}
