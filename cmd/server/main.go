package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"meet-in-the-middle-api/db"
	"meet-in-the-middle-api/internal/auth"
	"meet-in-the-middle-api/internal/config"
	"meet-in-the-middle-api/internal/coord"
	gweb "meet-in-the-middle-api/internal/grpcweb"
	"meet-in-the-middle-api/internal/handler"
	"meet-in-the-middle-api/internal/logger"
	"meet-in-the-middle-api/internal/mail"
	"meet-in-the-middle-api/internal/middleware"
	"meet-in-the-middle-api/internal/places"
	"meet-in-the-middle-api/internal/rpc"
	"meet-in-the-middle-api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, lg *slog.Logger) error {
	// database
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	lg.Info("connected to postgres")
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	lg.Info("migrations applied")

	st := store.New(pool)
	engine := coord.NewEngine(st,
		places.New(cfg.Places.BaseURL, cfg.Places.APIKey, cfg.Places.Timeout),
		coord.Options{
			RadiusMeters:     cfg.Places.RadiusMeters,
			DefaultPlaceType: cfg.Places.DefaultPlaceType,
			LookupTimeout:    cfg.Places.Timeout,
		})

	strategies, err := oauthStrategies(ctx, cfg.OAuth)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(cfg.Auth.JWTSecret, strategies)
	lg.Info("oauth providers", "enabled", authSvc.Providers())

	h := handler.New(handler.Deps{
		Store:  st,
		Engine: engine,
		Auth:   authSvc,
		Mail: mail.NewService(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			AppURL:   cfg.Server.FrontendURL,
		}),
		Log:         lg,
		FrontendURL: cfg.Server.FrontendURL,
	})

	rl := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer rl.Close()

	// grpc server
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.UnaryRateLimit(rl, map[string]bool{
				rpc.MethodNearbyPlaces: true,
				rpc.MethodToggleVote:   true,
			}),
			middleware.UnaryAuth(authSvc, nil),
		),
	)
	rpc.New(engine, rpc.WithLogger(lg), rpc.WithFinalizeHook(h.AnnounceLocation)).Register(srv)

	grpcLis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return err
	}

	// grpc-web bridge -> forwards browser requests to grpc on localhost
	bridge, err := gweb.New("localhost:"+cfg.Server.GRPCPort, rpc.ServiceName, lg)
	if err != nil {
		return err
	}
	defer bridge.Close()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(lg), middleware.Metrics(), middleware.CORS(cfg.Server.CORSOrigins))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST(bridge.Prefix()+":method", gin.WrapH(bridge.Handler()))
	h.Mount(r, rl)

	httpLis, err := net.Listen("tcp", ":"+cfg.Server.HTTPPort)
	if err != nil {
		return err
	}
	if cfg.Server.MaxConns > 0 {
		httpLis = netutil.LimitListener(httpLis, cfg.Server.MaxConns)
	}
	httpSrv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("grpc listening", "addr", grpcLis.Addr().String())
		return srv.Serve(grpcLis)
	})
	g.Go(func() error {
		lg.Info("http listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// graceful shutdown
		<-gctx.Done()
		lg.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(sctx)
		srv.GracefulStop()
		return err
	})
	return g.Wait()
}

func oauthStrategies(ctx context.Context, c config.OAuthConfig) (auth.Strategies, error) {
	out := auth.Strategies{}
	conv := func(p config.OAuthProvider) auth.OAuthConfig {
		return auth.OAuthConfig{ClientID: p.ClientID, ClientSecret: p.ClientSecret, RedirectURL: p.RedirectURL}
	}
	if c.Google.Enabled() {
		out["google"] = auth.NewGoogleStrategy(conv(c.Google))
	}
	if c.Facebook.Enabled() {
		out["facebook"] = auth.NewFacebookStrategy(conv(c.Facebook))
	}
	if c.OIDC.Enabled() && c.Issuer != "" {
		s, err := auth.NewOIDCStrategy(ctx, c.Issuer, conv(c.OIDC))
		if err != nil {
			return nil, err
		}
		out["oidc"] = s
	}
	return out, nil
}
