package main

import (
	"context"
	"embed"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v7/linebot"

	"kashikari-backend/internal/bot"
	"kashikari-backend/internal/lending"
	"kashikari-backend/internal/metrics"
	"kashikari-backend/internal/platform/auth"
	"kashikari-backend/internal/platform/config"
	"kashikari-backend/internal/platform/db"
	"kashikari-backend/internal/platform/line"
	"kashikari-backend/internal/platform/middleware"
	"kashikari-backend/internal/users"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	// 設定読み込み
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(err)
	}

	log.Printf("[INFO] mode:%s\n", cfg.Mode)

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	if err := db.Migrate(conn, migrationsFS, "migrations", cfg.DB.DBName); err != nil {
		log.Fatalf("[ERROR] migrate: %v", err)
	}
	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	botClient, err := linebot.New(cfg.Line.ChannelSecret, cfg.Line.ChannelAccessToken)
	if err != nil {
		log.Fatalf("[ERROR] line client: %v", err)
	}

	// 依存はここで一度だけ組み立てて各ハンドラへ渡す
	gateway := line.NewClient(botClient)
	userStore := users.NewStore(conn)
	lendingSvc := lending.NewService(lending.NewStore(conn), userStore)
	botSvc := bot.NewService(
		lendingSvc,
		gateway,
		bot.ReplyTokens{Yes: cfg.Bot.YesToken, No: cfg.Bot.NoToken},
		cfg.Sweep.Lookahead.Std(),
	)
	authSvc := auth.NewService(line.NewProfileAPI(), []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL.Std())

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス・メトリクス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// LINEコールバック（署名検証つき、認証ミドルウェアの外）
	bot.RegisterWebhook(r, botSvc, botClient)

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, authSvc)

	authed := api.Group("", auth.RequireAuth([]byte(cfg.Auth.JWTSecret)))
	lending.RegisterRoutes(authed, lendingSvc)
	bot.RegisterAdminRoutes(authed, botSvc)

	// 内蔵スケジューラ（interval > 0 の場合のみ）
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if cfg.Sweep.Interval.Std() > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Sweep.Interval.Std())
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case now := <-ticker.C:
					if err := botSvc.RunReminderSweep(sweepCtx, now.UTC()); err != nil {
						log.Printf("[WARN] sweep: %v", err)
					}
				}
			}
		}()
		log.Printf("[INFO] sweep scheduler started: every %s", cfg.Sweep.Interval.Std())
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
