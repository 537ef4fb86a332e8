package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
)

// CallBudget is the overall deadline a caller needs to give one request so
// that every retry still gets its full per-request timeout.
func CallBudget(timeout time.Duration, maxRetries uint64) time.Duration {
	n := time.Duration(maxRetries)
	return timeout*(n+1) + retryMaxInterval*n
}

// Client talks to an STK-push style HTTP API. Transport failures and 5xx
// responses are retried with exponential backoff; 4xx responses are final.
type Client struct {
	baseURL    string
	shortCode  string
	httpClient *http.Client
	maxRetries uint64
}

func NewClient(baseURL, shortCode string, timeout time.Duration, maxRetries uint64) *Client {
	return &Client{
		baseURL:    baseURL,
		shortCode:  shortCode,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	AccountReference  string `json:"AccountReference"`
}

type stkQueryResponse struct {
	ResultCode         string `json:"ResultCode"`
	ResultDesc         string `json:"ResultDesc"`
	MpesaReceiptNumber string `json:"MpesaReceiptNumber"`
}

func (c *Client) RequestCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	body := stkPushRequest{
		BusinessShortCode: c.shortCode,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.StringFixed(2),
		PhoneNumber:       req.Phone,
		CallBackURL:       req.CallbackURL,
		// Retries resend the same AccountReference; the provider uses it to
		// drop duplicate pushes, so a lost response never prompts twice.
		AccountReference: req.Token,
		TransactionDesc:  fmt.Sprintf("Order %d", req.OrderID),
	}

	var out ChargeResponse
	if err := c.post(ctx, "/stkpush", body, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, fmt.Errorf("charge rejected: %s %s", out.ResponseCode, out.ResponseDescription)
	}
	return &out, nil
}

func (c *Client) QueryStatus(ctx context.Context, token string) (*StatusResponse, error) {
	var out stkQueryResponse
	err := c.post(ctx, "/stkpushquery", stkQueryRequest{BusinessShortCode: c.shortCode, AccountReference: token}, &out)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{
		Outcome:       OutcomeFromResultCode(out.ResultCode),
		ResultCode:    out.ResultCode,
		ResultDesc:    out.ResultDesc,
		ReceiptNumber: out.MpesaReceiptNumber,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("gateway returned status %d", resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode gateway response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
}
