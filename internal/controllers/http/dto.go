package http

import (
	"time"

	"grocery-service/internal/domain"

	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type AddCartItemRequest struct {
	ProductID uint64 `json:"productId" binding:"required"`
	Quantity  *int64 `json:"quantity" binding:"required"`
}

type SetQuantityRequest struct {
	Quantity *int64 `json:"quantity" binding:"required"`
}

type RemoveLineResponse struct {
	Removed bool `json:"removed"`
}

type PlaceOrderRequest struct {
	DeliveryAddress      string `json:"deliveryAddress" binding:"required,max=512"`
	DeliveryPhone        string `json:"deliveryPhone" binding:"required,max=32"`
	DeliveryInstructions string `json:"deliveryInstructions" binding:"max=512"`
	// DeliveryDate is a calendar date, YYYY-MM-DD.
	DeliveryDate string          `json:"deliveryDate" binding:"omitempty,datetime=2006-01-02"`
	TimeSlot     domain.TimeSlot `json:"timeSlot" binding:"omitempty,max=16"`
}

func (r PlaceOrderRequest) deliveryDate() *time.Time {
	if r.DeliveryDate == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", r.DeliveryDate)
	if err != nil {
		return nil
	}
	return &d
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type InitiatePaymentRequest struct {
	OrderID     uint64           `json:"orderId" binding:"required"`
	PhoneNumber string           `json:"phoneNumber" binding:"required,mpesa_phone"`
	Amount      *decimal.Decimal `json:"amount" binding:"required"`
}

type InitiatePaymentResponse struct {
	CorrelationToken  string `json:"correlationToken"`
	CheckoutRequestID string `json:"checkoutRequestId,omitempty"`
	Message           string `json:"message"`
}

// STKCallbackRequest is the body the provider posts when a prompt settles.
type STKCallbackRequest struct {
	Body struct {
		STKCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode" binding:"required"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value,omitempty"`
				} `json:"Item"`
			} `json:"CallbackMetadata,omitempty"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallbackResponse struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type UpdatePriceRequest struct {
	Price *decimal.Decimal `json:"price" binding:"required"`
}
