package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	_ "github.com/playmixer/walletledger/docs"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/mining"
	"github.com/playmixer/walletledger/internal/core/payment"
	"github.com/playmixer/walletledger/internal/core/wallet"
	"github.com/playmixer/walletledger/pkg/jwt"
)

var (
	cookieName           = "token"
	cookieKey            = "AccountID"
	ctxAccountID         = "accountID"
	headerIdempotencyKey = "Idempotency-Key"
	headerAdminKey       = "X-Admin-Key"
)

type walletService interface {
	Open(ctx context.Context, accountID string) (model.Wallet, error)
	Purchase(ctx context.Context, req payment.PurchaseRequest) (model.Order, error)
	Refund(ctx context.Context, orderID string) (model.Order, error)
	Claim(ctx context.Context, accountID string) (mining.Claim, error)
	MiningStatus(ctx context.Context, accountID string) (mining.Status, error)
	Orders(ctx context.Context, accountID string) ([]*model.Order, error)
	Earnings(ctx context.Context, accountID string) (wallet.Earnings, error)
}

type Server struct {
	log          *zap.Logger
	engine       *gin.Engine
	service      walletService
	limiter      *limiter
	address      string
	secret       []byte
	adminKeyHash []byte
	corsOrigins  []string
	shutdownWait time.Duration
}

type Option func(*Server)

func Logger(log *zap.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func SetAddress(address string) Option {
	return func(s *Server) {
		s.address = address
	}
}

func SetSecretKey(key []byte) Option {
	return func(s *Server) {
		s.secret = key
	}
}

// SetAdminKeyHash sets the bcrypt hash the X-Admin-Key header is checked
// against. Without it the admin routes always answer 403.
func SetAdminKeyHash(hash string) Option {
	return func(s *Server) {
		s.adminKeyHash = []byte(hash)
	}
}

// CORSOrigins sets the origins allowed to send credentialed requests.
func CORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// RateLimit bounds mutating requests per account.
func RateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.limiter = newLimiter(rate.Limit(perSecond), burst)
	}
}

func Configure(cfg *Config) Option {
	return func(s *Server) {
		s.address = cfg.Address
		s.secret = []byte(cfg.Secret)
		s.adminKeyHash = []byte(cfg.AdminKeyHash)
		s.corsOrigins = cfg.CORSOrigins
		s.shutdownWait = cfg.ShutdownWait
		if cfg.RateLimit > 0 {
			s.limiter = newLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
		}
	}
}

//	@title			Wallet ledger
//	@version		1.0
//	@description	Wallet balances, purchases with affiliate commission and daily mining rewards.
//	@host			localhost:8080
//	@BasePath		/

func New(service walletService, options ...Option) (*Server, error) {
	s := &Server{
		log:          zap.NewNop(),
		service:      service,
		limiter:      newLimiter(rate.Inf, 0),
		shutdownWait: 10 * time.Second,
	}
	for _, opt := range options {
		opt(s)
	}

	s.engine = gin.New()
	s.engine.Use(
		s.Logger(),
		s.CORS(),
		s.GzipDecompress(),
	)

	api := s.engine.Group("/api")
	api.Use(s.GzipCompress(), s.Authentication())
	{
		apiWallet := api.Group("/wallet")
		apiWallet.GET("", s.handlerGetWallet)
		apiWallet.POST("/purchase", s.RateLimit(), s.handlerPurchase)
		apiWallet.GET("/orders", s.handlerGetOrders)
		apiWallet.GET("/earnings", s.handlerGetEarnings)

		apiMining := api.Group("/mining")
		apiMining.GET("", s.handlerMiningStatus)
		apiMining.POST("/claim", s.RateLimit(), s.handlerMiningClaim)
	}

	apiAdmin := s.engine.Group("/api/admin")
	apiAdmin.Use(s.AdminOnly())
	{
		apiAdmin.POST("/orders/:id/refund", s.handlerRefund)
	}
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return s, nil
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is done and then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("server started", zap.String("address", s.address))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped with error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed shutdown server: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) checkAuth(c *gin.Context) (string, error) {
	cookieAccount, err := c.Request.Cookie(cookieName)
	if err != nil {
		return "", fmt.Errorf("failed read account cookie: %w %w", err, errUnauthorize)
	}

	jwtRest := jwt.New(s.secret)
	accountID, ok, err := jwtRest.Verify(cookieAccount.Value, cookieKey)
	if err != nil {
		return "", fmt.Errorf("failed verify token: %w %w", err, errUnauthorize)
	}
	if !ok {
		return "", fmt.Errorf("unverified account cookie: %w", errUnauthorize)
	}
	return accountID, nil
}

func (s *Server) checkAdmin(c *gin.Context) bool {
	key := c.GetHeader(headerAdminKey)
	if key == "" || len(s.adminKeyHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.adminKeyHash, []byte(key)) == nil
}

// CORS lets the configured origins call the API with the session cookie.
// A "*" entry opens the API to every origin, but without credentials.
func (s *Server) CORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AddAllowHeaders(headerIdempotencyKey)
	if slices.Contains(s.corsOrigins, "*") {
		cfg.AllowAllOrigins = true
		return cors.New(cfg)
	}
	cfg.AllowCredentials = true
	cfg.AllowOriginFunc = func(origin string) bool {
		return slices.Contains(s.corsOrigins, origin)
	}
	return cors.New(cfg)
}

func accountID(c *gin.Context) string {
	return c.GetString(ctxAccountID)
}

func (s *Server) readBody(c *gin.Context) ([]byte, int) {
	bBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.log.Error("failed read body", zap.Error(err))
		return []byte{}, http.StatusInternalServerError
	}
	defer func() {
		if err := c.Request.Body.Close(); err != nil {
			s.log.Error(msgErrorCloseBody, zap.Error(err))
		}
	}()
	return bBody, 0
}
