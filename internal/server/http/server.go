// Package httpapi serves the gateway's public HTTP surface: the auth,
// rest, functions and storage routes plus /healthz and /metrics.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/logging"
	"github.com/dmitrijs2005/nocgateway/internal/server/auth"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/rows"
	"github.com/dmitrijs2005/nocgateway/internal/server/services"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// AuthService issues and verifies session tokens.
type AuthService interface {
	PasswordGrant(ctx context.Context, login, password string) (*services.Session, error)
	RefreshGrant(ctx context.Context, token string) (*services.Session, error)
	Authenticate(token string) (auth.Identity, error)
	GetUser(ctx context.Context, id auth.Identity) (*services.UserView, error)
	UpdateUser(ctx context.Context, id auth.Identity, body map[string]any) (*services.UserView, error)
	Signup(ctx context.Context, caller auth.Identity, in services.SignupInput) (*services.UserView, error)
}

// RowService is the generic row store.
type RowService interface {
	List(ctx context.Context, id auth.Identity, relation string, params url.Values, count bool) (*services.ListResult, error)
	Create(ctx context.Context, id auth.Identity, relation string, params url.Values, body []byte) ([]rows.Record, error)
	Update(ctx context.Context, id auth.Identity, relation string, params url.Values, body []byte) ([]rows.Record, error)
	Delete(ctx context.Context, id auth.Identity, relation string, params url.Values) ([]rows.Record, error)
}

// RPCService runs named procedures.
type RPCService interface {
	Invoke(ctx context.Context, id auth.Identity, p services.Procedure, args []byte) (any, error)
}

// FunctionService runs gateway functions.
type FunctionService interface {
	Invoke(ctx context.Context, id auth.Identity, f services.Function, args []byte) (any, error)
}

// StorageService reads and writes tenant objects.
type StorageService interface {
	Upload(ctx context.Context, id auth.Identity, bucket, key, contentType string, body io.Reader) (*services.Object, error)
	Download(ctx context.Context, id auth.Identity, bucket, key string) (*services.Object, error)
	Sign(ctx context.Context, id auth.Identity, bucket, key string) (*services.SignedURL, error)
}

// Pinger reports store reachability. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services bundles what the routes call into.
type Services struct {
	Auth      AuthService
	Rows      RowService
	RPC       RPCService
	Functions FunctionService
	Storage   StorageService
	DB        Pinger
}

// Options tunes middleware.
type Options struct {
	AuthRateRPS    float64
	AuthRateBurst  int
	AllowedOrigins []string
}

type HTTPServer struct {
	address string
	logger  logging.Logger
	svc     Services
	engine  *gin.Engine
}

func NewHTTPServer(address string, l logging.Logger, svc Services, opts Options) *HTTPServer {
	s := &HTTPServer{
		address: address,
		logger:  l.With("module", "http_server"),
		svc:     svc,
		engine:  gin.New(),
	}
	s.registerRoutes(opts)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(listen)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-served
	return nil
}
