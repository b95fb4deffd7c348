package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dietlog/config"
	"dietlog/controllers"
	"dietlog/middlewares"
	"dietlog/routes"
	"dietlog/services"
	"dietlog/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := config.NewLogger(cfg)
	gin.SetMode(cfg.GinMode)

	db, err := config.OpenDB(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	store := services.NewMealStore(db)
	hub := services.NewRealtimeHub()
	cookies := middlewares.NewSessionCookies(
		utils.NewSessionSigner(cfg.SessionSecret, cfg.SessionTTL),
		cfg.SessionCookieName,
		cfg.CookieSecure,
	)

	stop := make(chan struct{})
	var limiter *middlewares.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middlewares.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
		limiter.StartCleanup(10*time.Minute, stop)
	}

	r := routes.SetupRouter(routes.Deps{
		Meals: controllers.NewMealController(
			services.NewMealService(store, hub),
			services.NewSummaryService(store),
			cookies,
			log,
		),
		Realtime: controllers.NewRealtimeController(hub),
		Cookies:  cookies,
		Limiter:  limiter,
		Log:      log,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}
