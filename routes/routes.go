package routes

import (
	"net/http"

	"dietlog/controllers"
	"dietlog/metrics"
	"dietlog/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Meals    *controllers.MealController
	Realtime *controllers.RealtimeController
	Cookies  *middlewares.SessionCookies
	Limiter  *middlewares.RateLimiter // nil disables rate limiting
	Log      *logrus.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(d.Log), metrics.Middleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	meals := r.Group("/meals")
	meals.Use(middlewares.LoadSession(d.Cookies))
	if d.Limiter != nil {
		meals.Use(d.Limiter.Handler())
	}

	// Creating a meal is the one call that works without a session.
	meals.POST("", d.Meals.Create)

	owned := meals.Group("")
	owned.Use(middlewares.RequireSession())
	{
		owned.GET("", d.Meals.List)
		owned.GET("/summary", d.Meals.GetSummary)
		owned.GET("/events", d.Realtime.MealEvents)
		owned.GET("/:id", d.Meals.Get)
		owned.PUT("/:id", d.Meals.Update)
		owned.PATCH("/:id", d.Meals.Update)
		owned.DELETE("/:id", d.Meals.Delete)
	}

	return r
}
