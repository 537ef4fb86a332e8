package http

import (
	"grocery-service/internal/auth"
	"grocery-service/internal/domain"
	"grocery-service/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const phoneTag = "mpesa_phone"

func init() {
	binding.EnableDecoderDisallowUnknownFields = true
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation(phoneTag, func(fl validator.FieldLevel) bool {
			return domain.ValidPhone(fl.Field().String())
		})
	}
}

type RouterConfig struct {
	Verifier    *auth.Verifier
	Policy      *auth.Policy
	Idempotency IdempotencyStore
	Metrics     *metrics.Metrics
	Log         logrus.FieldLogger
}

func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), AccessLog(cfg.Log))
	if cfg.Metrics != nil {
		r.Use(Instrument(cfg.Metrics))
	}
	h.RegisterRoutes(r, cfg)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine, cfg RouterConfig) {
	api := r.Group("/api")
	api.GET("/health", h.Health)
	if cfg.Metrics != nil {
		api.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	api.POST("/payments/callback", h.PaymentCallback)

	authed := api.Group("", auth.Authenticate(cfg.Verifier), auth.Authorize(cfg.Policy, cfg.Log))
	idem := Idempotent(cfg.Idempotency, cfg.Log)

	authed.GET("/cart", h.GetCart)
	authed.POST("/cart", h.AddCartItem)
	authed.PUT("/cart/:id", h.SetCartQuantity)
	authed.DELETE("/cart/:id", h.RemoveCartLine)
	authed.DELETE("/cart", h.ClearCart)

	authed.GET("/orders", h.ListOrders)
	authed.POST("/orders", idem, h.PlaceOrder)
	authed.GET("/orders/:id", h.GetOrder)
	authed.PUT("/orders/:id/status", h.UpdateOrderStatus)

	authed.POST("/payments", idem, h.InitiatePayment)
	authed.GET("/payments/:token", h.PaymentStatus)

	authed.GET("/admin/stats", h.Stats)
	authed.PUT("/admin/products/:id/price", h.UpdateProductPrice)
}
