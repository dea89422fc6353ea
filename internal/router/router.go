package router

import (
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/api"
	"github.com/pageza/alchemorsel-v2/recommender/internal/middleware"
	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
)

// Deps are the collaborators the routes need. Redis and Checks may be nil.
type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	Service service.IRecommender
	Redis   *redis.Client
	Checks  map[string]api.Check
}

// SetupRouter configures the application routes
func SetupRouter(d Deps) *gin.Engine {
	if d.Config.Environment == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		middleware.Recovery(log),
		requestid.New(),
		middleware.Logger(log),
		middleware.Metrics(),
		middleware.CORS(d.Config.Server.CORSOrigins),
		middleware.ErrorHandler(log),
	)

	api.NewHealth(d.Checks, log).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// without a secret no token validates and admin routes answer 403
	var tokens middleware.TokenValidator
	if d.Config.JWTSecret != "" {
		tokens = middleware.NewJWT(d.Config.JWTSecret)
	}

	v1 := router.Group("/api/v1", middleware.OptionalAuth(tokens))
	if rl := d.Config.RateLimit; rl.Enabled && d.Redis != nil {
		v1.Use(middleware.NewRateLimiter(d.Redis, middleware.RateLimitConfig{
			Window: rl.Window,
			Limit:  rl.Requests,
		}, log).Middleware())
	}
	api.NewHandler(d.Service, log).RegisterRoutes(v1, middleware.AdminAuth(tokens))

	return router
}
