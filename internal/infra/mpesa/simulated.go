package mpesa

import (
	"context"
	"strings"
	"sync"
	"time"

	"grocery-service/internal/domain"

	"github.com/google/uuid"
)

// DefaultRetention is how long the simulated gateway remembers a charge.
const DefaultRetention = 24 * time.Hour

type simulatedCharge struct {
	req    ChargeRequest
	result *StatusResponse
	at     time.Time
}

// SimulatedGateway accepts every charge and leaves it unsettled until
// Settle is called, mimicking a customer answering the STK prompt. Charges
// older than the retention period are forgotten and report an unknown outcome.
type SimulatedGateway struct {
	mu        sync.Mutex
	charges   map[string]*simulatedCharge
	retention time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		charges:   make(map[string]*simulatedCharge),
		retention: DefaultRetention,
		now:       time.Now,
	}
}

func (g *SimulatedGateway) RequestCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.charge(req.Token).req = req
	g.mu.Unlock()

	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:20]
	return &ChargeResponse{
		MerchantRequestID:   "MR" + id,
		CheckoutRequestID:   "CR" + id,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func (g *SimulatedGateway) QueryStatus(ctx context.Context, token string) (*StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.charges[token]; ok && c.result != nil {
		res := *c.result
		return &res, nil
	}
	return &StatusResponse{Outcome: domain.OutcomeUnknown}, nil
}

// Settle fixes the result QueryStatus will report for token.
func (g *SimulatedGateway) Settle(token string, outcome domain.Outcome, desc string) {
	code := "1032"
	if outcome == domain.OutcomeSuccess {
		code = "0"
	}
	g.mu.Lock()
	g.charge(token).result = &StatusResponse{Outcome: outcome, ResultCode: code, ResultDesc: desc}
	g.mu.Unlock()
}

// Requested reports whether a charge was requested for token.
func (g *SimulatedGateway) Requested(token string) (ChargeRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.charges[token]
	if !ok || c.req.Token == "" {
		return ChargeRequest{}, false
	}
	return c.req, true
}

// charge returns the entry for token, creating it if needed. Callers hold mu.
func (g *SimulatedGateway) charge(token string) *simulatedCharge {
	now := g.now()
	g.prune(now)
	c, ok := g.charges[token]
	if !ok {
		c = &simulatedCharge{}
		g.charges[token] = c
	}
	c.at = now
	return c
}

// prune drops expired charges, at most once per tenth of the retention period.
func (g *SimulatedGateway) prune(now time.Time) {
	if now.Sub(g.lastPrune) < g.retention/10 {
		return
	}
	g.lastPrune = now
	for token, c := range g.charges {
		if now.Sub(c.at) > g.retention {
			delete(g.charges, token)
		}
	}
}
