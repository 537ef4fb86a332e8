package http

import (
	"errors"
	"net/http"
	"strconv"

	"grocery-service/internal/auth"
	"grocery-service/internal/domain"
	"grocery-service/internal/infra/mpesa"
	"grocery-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	cart           *services.CartService
	orders         *services.OrderService
	payments       *services.PaymentService
	catalog        *services.CatalogReader
	log            logrus.FieldLogger
	callbackSecret string
}

func NewHandler(cart *services.CartService, orders *services.OrderService, payments *services.PaymentService, catalog *services.CatalogReader, log logrus.FieldLogger, callbackSecret string) *Handler {
	return &Handler{
		cart:           cart,
		orders:         orders,
		payments:       payments,
		catalog:        catalog,
		log:            log,
		callbackSecret: callbackSecret,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetCart(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	totals, err := h.cart.Totals(c.Request.Context(), u.ID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (h *Handler) AddCartItem(c *gin.Context) {
	var req AddCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	u, _ := auth.CurrentUser(c)
	line, err := h.cart.AddItem(c.Request.Context(), u.ID, req.ProductID, *req.Quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (h *Handler) SetCartQuantity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !bindJSON(c, &req) {
		return
	}
	u, _ := auth.CurrentUser(c)
	line, err := h.cart.SetQuantity(c.Request.Context(), u.ID, id, *req.Quantity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (h *Handler) RemoveCartLine(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, _ := auth.CurrentUser(c)
	removed, err := h.cart.RemoveLine(c.Request.Context(), u.ID, id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, RemoveLineResponse{Removed: removed})
}

func (h *Handler) ClearCart(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	if err := h.cart.Clear(c.Request.Context(), u.ID); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListOrders(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	orders, err := h.orders.ListOrders(c.Request.Context(), u)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	u, _ := auth.CurrentUser(c)
	order, err := h.orders.PlaceOrder(c.Request.Context(), u, services.PlaceOrderInput{
		DeliveryAddress:      req.DeliveryAddress,
		DeliveryPhone:        req.DeliveryPhone,
		DeliveryInstructions: req.DeliveryInstructions,
		DeliveryDate:         req.deliveryDate(),
		TimeSlot:             req.TimeSlot,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, _ := auth.CurrentUser(c)
	order, err := h.orders.GetOrder(c.Request.Context(), u, id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	u, _ := auth.CurrentUser(c)
	order, err := h.orders.UpdateStatus(c.Request.Context(), u, id, req.Status)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	u, _ := auth.CurrentUser(c)
	attempt, err := h.payments.InitiatePayment(c.Request.Context(), u, req.OrderID, req.PhoneNumber, *req.Amount)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, InitiatePaymentResponse{
		CorrelationToken:  attempt.CorrelationToken,
		CheckoutRequestID: attempt.GatewayReference,
		Message:           "Payment initiated. Check your phone for the M-Pesa prompt.",
	})
}

func (h *Handler) PaymentStatus(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	attempt, err := h.payments.PaymentStatus(c.Request.Context(), u, c.Param("token"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// PaymentCallback receives the provider's settlement notice. The token and
// its signature travel in the callback URL handed out with the charge.
func (h *Handler) PaymentCallback(c *gin.Context) {
	token := c.Query("token")
	if token == "" || !mpesa.Verify(h.callbackSecret, token, c.Query("sig")) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "InvalidSignature", Message: "callback signature mismatch"})
		return
	}

	var req STKCallbackRequest
	if !bindJSON(c, &req) {
		return
	}
	cb := req.Body.STKCallback
	outcome := mpesa.OutcomeFromResultCode(strconv.Itoa(*cb.ResultCode))

	_, err := h.payments.ConfirmPayment(c.Request.Context(), token, outcome, cb.ResultDesc)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) {
			h.log.WithField("correlation_token", token).Info("duplicate settlement callback")
		}
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, STKCallbackResponse{ResultCode: 0, ResultDesc: "Accepted"})
}

func (h *Handler) Stats(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	stats, err := h.orders.Stats(c.Request.Context(), u)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) UpdateProductPrice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdatePriceRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.catalog.UpdatePrice(c.Request.Context(), id, *req.Price)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "ValidationError", Message: name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}
