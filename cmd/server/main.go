package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/min9-wan9/Chat/internal/auth"
	"github.com/min9-wan9/Chat/internal/chat"
	"github.com/min9-wan9/Chat/internal/config"
	"github.com/min9-wan9/Chat/internal/db"
	clog "github.com/min9-wan9/Chat/internal/log"
	"github.com/min9-wan9/Chat/internal/mw"
	"github.com/min9-wan9/Chat/internal/server"
	"github.com/min9-wan9/Chat/internal/service"
	"github.com/min9-wan9/Chat/internal/ws"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	retention, err := chat.ParseRetention(cfg.RoomRetention)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	fileSvc, err := service.NewFileService(gdb, cfg.UploadDir, cfg.MaxUploadMB)
	if err != nil {
		log.Fatal().Err(err).Msg("file service")
	}

	dir := chat.NewDirectory(chat.DirectoryOptions{
		Retention:    retention,
		HistoryLimit: cfg.HistoryLimit,
		Secrets:      auth.NewRoomSecrets(cfg.RoomPasswordCost),
	})
	router := chat.NewRouter(chat.NewRegistry(), dir)

	policy := mw.NewOriginPolicy(cfg.AllowedOrigins)
	limiter := mw.NewRateLimiter(rate.Limit(cfg.HTTPRate), cfg.HTTPBurst, time.Duration(cfg.HTTPLimiterTTLSeconds)*time.Second)
	limiter.Start()

	wsHandler := ws.Serve(router, ws.Options{
		MaxFrameBytes: int64(cfg.MaxFrameBytes),
		FrameRate:     cfg.FrameRate,
		FrameBurst:    cfg.FrameBurst,
		SendBuffer:    cfg.SendBuffer,
		CheckOrigin:   policy.CheckOrigin,
	})
	h := server.NewHandler(fileSvc, service.NewRoomService(router))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, h, wsHandler, limiter, policy),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Str("retention", retention.String()).Msg("chat server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			"chat-connections": func(ctx context.Context) error {
				router.Close()
				return nil
			},
			"rate-limiter": func(ctx context.Context) error {
				limiter.Stop()
				return nil
			},
			"database": func(ctx context.Context) error {
				return db.Close(gdb)
			},
		},
	)
	code := <-wait
	log.Info().Int("code", code).Msg("chat server stopped")
	os.Exit(code)
}
