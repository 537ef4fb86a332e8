package mpesa

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/url"

	"grocery-service/internal/domain"

	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	Token       string
	OrderID     uint64
	Phone       string
	Amount      decimal.Decimal
	CallbackURL string
}

type ChargeResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type StatusResponse struct {
	Outcome       domain.Outcome
	ResultCode    string
	ResultDesc    string
	ReceiptNumber string
}

// Gateway is the mobile-money provider. RequestCharge only starts an STK
// push; settlement arrives later through the callback or QueryStatus.
type Gateway interface {
	RequestCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	QueryStatus(ctx context.Context, token string) (*StatusResponse, error)
}

// OutcomeFromResultCode maps an STK result code. An empty code means the
// provider has no final answer yet.
func OutcomeFromResultCode(code string) domain.Outcome {
	switch code {
	case "":
		return domain.OutcomeUnknown
	case "0":
		return domain.OutcomeSuccess
	default:
		return domain.OutcomeFailure
	}
}

// NewCallbackSecret returns a random signing key for deployments that do not
// configure one.
func NewCallbackSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Sign returns the signature embedded in callback URLs for token.
func Sign(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func Verify(secret, token, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hmac.Equal(mac.Sum(nil), want)
}

// CallbackURL builds the per-attempt callback address handed to the provider.
func CallbackURL(base, secret, token string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("sig", Sign(secret, token))
	return base + "?" + q.Encode()
}
