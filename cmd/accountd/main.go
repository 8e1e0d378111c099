package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	s3blob "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/blob/s3"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/memory"
	myPostgresRepo "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/postgres"
	myRedisRepo "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/redis"
	myGrpc "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/grpc"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/handler"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/password"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/token"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/channel"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/account-service/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/migrate"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/server"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type stores struct {
	accounts      repo.AccountRepo
	subscriptions repo.SubscriptionRepo
	history       repo.HistoryRepo
	videos        repo.VideoRepo
	close         func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		lg.Must("info", "console").Fatal("failed to load config", zap.Error(err))
	}
	zapLog := lg.Must(cfg.LogLevel, cfg.LogFormat)
	defer zapLog.Sync()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := openStores(cfg, zapLog)
	if err != nil {
		zapLog.Fatal("failed to open store", zap.Error(err))
	}
	defer st.close()

	var denylist repo.AccessDenylist
	if cfg.RedisAddress != "" {
		redisCli := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisCli.Close()
		denylist = myRedisRepo.NewAccessDenylist(redisCli)
	} else {
		zapLog.Warn("REDIS_ADDRESS is empty, logged-out access tokens stay valid until expiry")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := s3blob.New(rootCtx, s3blob.Settings{
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		Bucket:        cfg.S3Bucket,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}, zapLog.Named("blob"))
	if err != nil {
		zapLog.Fatal("failed to init blob store", zap.Error(err))
	}

	jwtUtil, err := jwt.NewJWTUtil(cfg)
	if err != nil {
		zapLog.Fatal("failed to init JWT util", zap.Error(err))
	}

	tokens := token.New(st.accounts, jwtUtil, denylist, zapLog.Named("token"))
	accounts := account.New(
		st.accounts, blobs, tokens,
		password.NewArgon2Hasher(cfg.PasswordPepper, nil),
		dto.NewValidator(),
		zapLog.Named("account"),
		account.Options{RevokeSessionsOnPasswordChange: cfg.RevokeSessionsOnPasswordChange},
	)
	channels := channel.New(st.accounts, st.subscriptions, st.history, st.videos)

	h := handler.New(accounts, channels, handler.CookieSettings{
		Domain: cfg.CookieDomain,
		Secure: cfg.SecureCookies(),
	}, cfg.UploadDir, zapLog.Named("http"))
	router := handler.NewRouter(h, accounts, handler.RouterConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: cfg.AllowCredentials,
	}, zapLog)

	grpcSrv := server.NewGRPCServer(myGrpc.NewHandler(accounts, channels, zapLog.Named("grpc")), zapLog)
	httpSrv := server.NewHTTPServer(cfg.HTTPAddress, router)

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		return grpcSrv.ListenAndServe(ctx, cfg.GRPCAddress)
	})
	g.Go(func() error {
		return server.ServeHTTP(ctx, httpSrv, zapLog)
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("server terminated", zap.Error(err))
		_ = zapLog.Sync()
		os.Exit(1)
	}
	zapLog.Info("shutdown complete")
}

func openStores(cfg *config.Config, log *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		m := memory.New()
		return &stores{accounts: m, subscriptions: m, history: m, videos: m, close: func() {}}, nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := migrate.Up(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &stores{
		accounts:      myPostgresRepo.NewPostgresAccountRepo(db),
		subscriptions: myPostgresRepo.NewPostgresSubscriptionRepo(db),
		history:       myPostgresRepo.NewPostgresHistoryRepo(db),
		videos:        myPostgresRepo.NewPostgresVideoRepo(db),
		close:         func() { _ = sqlDB.Close() },
	}, nil
}
