// Package api exposes the network over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pairnet/internal/domain"
	"pairnet/internal/ledger"
	"pairnet/internal/network"
	"pairnet/internal/observability"
	"pairnet/internal/pairing"
)

// Network is the set of operations the API serves.
type Network interface {
	LookupNode(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error)
	PlaceRoot(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error)
	PlaceNode(ctx context.Context, parent, child domain.ParticipantID, pos domain.Position) (*domain.TreeNode, error)
	Downline(ctx context.Context, root domain.ParticipantID, maxDepth int) ([]domain.DownlineEntry, error)
	CreditPV(ctx context.Context, participant domain.ParticipantID, amount decimal.Decimal, source domain.EntrySource, remark string) (*domain.LedgerEntry, error)
	DebitPV(ctx context.Context, participant domain.ParticipantID, amount decimal.Decimal, remark string) (*domain.LedgerEntry, error)
	GetTotalAndHistory(ctx context.Context, participant domain.ParticipantID) (*ledger.Statement, error)
	GetCurrentSessionStatus(ctx context.Context, now time.Time) (*network.SessionStatus, error)
	ClassifyDueWindows(ctx context.Context, participant domain.ParticipantID, now time.Time) (*pairing.DueResult, error)
	RecordLegEvent(ctx context.Context, participant domain.ParticipantID, leg domain.Position, tier domain.PackageTier, sourceRef string, at time.Time) (*domain.PairEvent, error)
	RecordPurchase(ctx context.Context, buyer domain.ParticipantID, tier domain.PackageTier, sourceRef string, at time.Time) ([]*domain.PairEvent, error)
	PendingQueue(ctx context.Context, participant domain.ParticipantID) ([]*domain.PairEvent, error)
	Summary(ctx context.Context, participant domain.ParticipantID) ([]domain.TierSummary, error)
}

// DefaultDownlineDepth is used when a downline request has no depth parameter.
const DefaultDownlineDepth = 3

// Server routes HTTP requests to the network.
type Server struct {
	router  *mux.Router
	network Network
	logger  zerolog.Logger
	now     func() time.Time
}

// Options for creating Server.
type Options struct {
	Network Network
	Logger  *zerolog.Logger
	Now     func() time.Time // defaults to time.Now
}

// New creates a Server with all routes registered.
func New(opts Options) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		network: opts.Network,
		logger:  zerolog.Nop(),
		now:     opts.Now,
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "api").Logger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/nodes/root", s.handlePlaceRoot).Methods(http.MethodPost)
	api.HandleFunc("/nodes", s.handlePlaceNode).Methods(http.MethodPost)
	api.HandleFunc("/nodes/{id}", s.handleLookupNode).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{id}/downline", s.handleDownline).Methods(http.MethodGet)

	api.HandleFunc("/ledger/{id}", s.handleStatement).Methods(http.MethodGet)
	api.HandleFunc("/ledger/{id}/credit", s.handleCredit).Methods(http.MethodPost)
	api.HandleFunc("/ledger/{id}/debit", s.handleDebit).Methods(http.MethodPost)

	api.HandleFunc("/session/status", s.handleSessionStatus).Methods(http.MethodGet)

	api.HandleFunc("/pairing/purchases", s.handleRecordPurchase).Methods(http.MethodPost)
	api.HandleFunc("/pairing/{id}/events", s.handleRecordLegEvent).Methods(http.MethodPost)
	api.HandleFunc("/pairing/{id}/classify", s.handleClassify).Methods(http.MethodPost)
	api.HandleFunc("/pairing/{id}/pending", s.handlePending).Methods(http.MethodGet)
	api.HandleFunc("/pairing/{id}/summary", s.handleSummary).Methods(http.MethodGet)

	// Router middleware only runs on matched routes.
	s.router.NotFoundHandler = s.requestIDMiddleware(s.requestLoggingMiddleware(http.HandlerFunc(s.handleNotFound)))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

// requestLoggingMiddleware logs each request and counts it by route template.
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		observability.RecordHTTPRequest(route, strconv.Itoa(wrapper.statusCode))

		s.logger.Debug().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("route", route).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}
