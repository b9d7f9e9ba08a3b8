// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"tixgate/internal/capacity"
	"tixgate/internal/credential"
	"tixgate/internal/events"
	"tixgate/internal/orders"
	"tixgate/internal/payouts"
	"tixgate/internal/shared/config"
	"tixgate/internal/shared/database"
	"tixgate/internal/transitions"
	"tixgate/pkg/logger"
	"tixgate/pkg/metrics"
	"tixgate/pkg/ratelimit"
)

// Router holds all route dependencies
type Router struct {
	config   *config.Config
	db       *database.DB
	limiter  *ratelimit.RateLimiter
	producer transitions.Producer
	log      *logger.Logger

	capacityService capacity.Service
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, limiter *ratelimit.RateLimiter, producer transitions.Producer, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		db:       db,
		limiter:  limiter,
		producer: producer,
		log:      log,
	}
}

// CapacityService exposes the ledger for the expiry sweeper
func (r *Router) CapacityService() capacity.Service {
	return r.capacityService
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	registerCustomValidators()

	r.setupHealthRoutes(engine)

	pg := r.db.GetPostgreSQL()

	// The ledger is shared: events seed it, orders hold and commit
	// against it.
	r.capacityService = capacity.NewService(capacity.NewRepository(pg))

	eventService := events.NewService(events.NewRepository(pg), r.capacityService)

	signer := credential.NewSigner(r.config.Credential.Secret)
	orderService := orders.NewService(
		orders.NewRepository(pg),
		r.capacityService,
		eventService,
		signer,
		r.producer,
		r.log,
		r.config.Capacity.HoldTTL,
		r.config.Credential.QRSize,
	)

	payoutService := payouts.NewService(
		payouts.NewRepository(pg),
		eventService,
		r.limiter,
		r.producer,
		r.log,
		r.config.Payout.CodeLength,
		r.config.RateLimit.ConfirmAttempts,
	)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		events.SetupEventRoutes(api, events.NewController(eventService))
		orders.SetupOrderRoutes(api, orders.NewController(orderService, r.config.Webhook.Secret))
		payouts.SetupPayoutRoutes(api, payouts.NewController(payoutService))
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "tixgate-core",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "tixgate-core",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/metrics", metrics.Handler())
}

// registerCustomValidators wires the enum rules used by request binding
// tags into gin's validator engine.
func registerCustomValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterValidation("capacitymodel", func(fl validator.FieldLevel) bool {
		return events.CapacityModel(fl.Field().String()).IsValid()
	})
	v.RegisterValidation("cutoffpolicy", func(fl validator.FieldLevel) bool {
		return events.CutoffPolicy(fl.Field().String()).IsValid()
	})
}
