package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/abuiliazeed/financial-projections/internal/config"
	"github.com/abuiliazeed/financial-projections/internal/domain/models"
)

// Store is the slice of the relational store the handlers need.
type Store interface {
	UserByID(ctx context.Context, id int64) (models.User, error)

	ListTypes(ctx context.Context, kind models.Kind, userID int64) ([]models.EntryType, error)
	CreateType(ctx context.Context, kind models.Kind, userID int64, name string) (models.EntryType, error)
	UpdateType(ctx context.Context, kind models.Kind, userID, id int64, name string) error
	DeleteType(ctx context.Context, kind models.Kind, userID, id int64) error

	ListEntries(ctx context.Context, kind models.Kind, userID int64, filter models.EntryFilter) ([]models.Entry, error)
	CreateEntry(ctx context.Context, e models.Entry) (models.Entry, error)
	UpdateEntry(ctx context.Context, e models.Entry) error
	DeleteEntry(ctx context.Context, kind models.Kind, userID, id int64) error
}

type Authenticator interface {
	Register(ctx context.Context, username, password string) (int64, error)
	Login(ctx context.Context, username, password string) (models.User, error)
}

type TokenCodec interface {
	Issue(userID int64) (string, error)
	Verify(token string) (int64, error)
	TTL() time.Duration
}

type Projector interface {
	Year(ctx context.Context, userID int64, year int) ([]models.MonthProjection, error)
}

type APIServer struct {
	config      *config.Config
	logger      *slog.Logger
	server      *http.Server
	storage     Store
	auth        Authenticator
	tokens      TokenCodec
	projections Projector
}

func New(
	config *config.Config,
	logger *slog.Logger,
	storage Store,
	auth Authenticator,
	tokens TokenCodec,
	projections Projector,
) *APIServer {
	s := &APIServer{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:              config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		storage:     storage,
		auth:        auth,
		tokens:      tokens,
		projections: projections,
	}
	s.configureRouter()
	return s
}

// Handler returns the full middleware chain wrapping the router.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("addr", s.server.Addr))

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

var ledgers = []ledgerRoute{
	{
		kind:        models.KindExpense,
		label:       "Expense",
		typesPath:   "/api/expense-types",
		entriesPath: "/api/expenses",
		typeIDParam: "expenseTypeId",
	},
	{
		kind:        models.KindRevenue,
		label:       "Revenue",
		typesPath:   "/api/revenue-types",
		entriesPath: "/api/revenues",
		typeIDParam: "revenueTypeId",
	},
}

func (s *APIServer) configureRouter() {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(s.notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)

	router.HandleFunc("/api/auth/signup", s.signupHandler()).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", s.loginHandler()).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", s.logoutHandler()).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/me", s.meHandler()).Methods(http.MethodGet)

	for _, l := range ledgers {
		router.HandleFunc(l.typesPath, s.listTypesHandler(l)).Methods(http.MethodGet)
		router.HandleFunc(l.typesPath, s.createTypeHandler(l)).Methods(http.MethodPost)
		router.HandleFunc(l.typesPath, s.updateTypeHandler(l)).Methods(http.MethodPut)
		router.HandleFunc(l.typesPath, s.deleteTypeHandler(l)).Methods(http.MethodDelete)

		router.HandleFunc(l.entriesPath, s.listEntriesHandler(l)).Methods(http.MethodGet)
		router.HandleFunc(l.entriesPath, s.createEntryHandler(l)).Methods(http.MethodPost)
		router.HandleFunc(l.entriesPath, s.updateEntryHandler(l)).Methods(http.MethodPut)
		router.HandleFunc(l.entriesPath, s.deleteEntryHandler(l)).Methods(http.MethodDelete)
	}

	router.HandleFunc("/api/projections", s.projectionsHandler()).Methods(http.MethodGet)

	for path, page := range pages {
		router.HandleFunc(path, s.pageHandler(page)).Methods(http.MethodGet)
	}

	s.server.Handler = s.logRequests(securityHeaders(s.authenticate(router)))
}
