package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"rideboard/internal/config"
	"rideboard/internal/db"
	"rideboard/internal/http/handlers"
	appmw "rideboard/internal/http/middleware"
	"rideboard/internal/mail"
	"rideboard/internal/strava"
	"rideboard/internal/syncer"
	ui "rideboard/web"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}

	db.StartRetentionWorker(sqlDB, cfg.RetentionMonths)

	handlers.InitPrometheusMetrics()

	stravaClient := strava.NewClient()
	worker := syncer.NewWorker(16)
	defer worker.Close()

	orch := syncer.New(
		&syncer.GormStore{DB: sqlDB, RetentionMonths: cfg.RetentionMonths},
		stravaClient,
		worker,
		syncer.Options{
			BackgroundThreshold: cfg.SyncBackgroundThreshold,
			SandboxEnabled:      cfg.SandboxCredentials,
			SandboxCredentials: strava.Credentials{
				ClientID:     cfg.SandboxClientID,
				ClientSecret: cfg.SandboxClientSecret,
			},
		},
	)

	sender := &mail.ConsoleSender{}

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.ServeFS("/static/{filepath:*}", ui.StaticFS())

	r.GET("/login", handlers.LoginForm())
	r.POST("/login", handlers.LoginSubmit(sqlDB))
	r.POST("/logout", handlers.Logout(sqlDB))
	r.GET("/register", handlers.RegisterForm())
	r.POST("/register", handlers.RegisterSubmit(sqlDB))
	r.GET("/forgot-password", handlers.ForgotPasswordForm())
	r.POST("/forgot-password", handlers.ForgotPassword(sqlDB, cfg, sender))
	r.GET("/reset-password", handlers.ResetPasswordForm())
	r.POST("/reset-password", handlers.ResetPasswordSubmit(sqlDB))

	session := appmw.SessionAuth(sqlDB)
	api := appmw.APIAuth(sqlDB)

	r.GET("/", session(handlers.Home()))
	r.GET("/dashboard", session(handlers.Dashboard(sqlDB, cfg)))
	r.GET("/strava/callback", session(handlers.StravaCallback(sqlDB, cfg, stravaClient)))

	r.GET("/v1/activities/stats", api(handlers.ActivityStats(sqlDB, cfg, orch)))
	r.GET("/v1/activities/recent", api(handlers.RecentActivities(sqlDB)))

	// The sync endpoint does its own auth so a scheduler can call it with
	// the shared bearer secret instead of a session.
	r.GET("/v1/activities/sync", handlers.SyncActivities(sqlDB, cfg, orch))
	r.POST("/v1/activities/sync", handlers.SyncActivities(sqlDB, cfg, orch))

	r.POST("/v1/strava/setup", api(handlers.StravaSetup(sqlDB)))
	r.GET("/v1/strava/auth-url", api(handlers.StravaAuthURL(sqlDB, cfg)))
	r.POST("/v1/strava/refresh", api(handlers.StravaRefreshCheck(sqlDB, cfg, stravaClient)))

	r.POST("/account/delete", api(handlers.DeleteAccount(sqlDB)))

	r.GET("/v1/metrics", handlers.UserMetricsHandler(sqlDB, cfg))

	handler := appmw.Recover(handlers.RequestLogger(r.Handler))

	log.Printf("rideboard listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
