package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finflow/lock"
)

const (
	refPrefixAuth    = "AUTH_"
	refPrefixCapture = "CAP_"
	refPrefixPayment = "PAY_"
	refPrefixRefund  = "REF_"
	refPrefixVoid    = "VOID_"
	refPrefixToken   = "TOK_"

	errCodeDeclined = "GW_DECLINED"

	txLockTTL = 10 * time.Second
)

// Simulator implements Gateway against no real processor. Outcomes are
// chosen pseudo-randomly at the configured success rate after a simulated
// latency, which preserves the timing and failure-injection contract of a
// real gateway. A seeded source makes outcome sequences reproducible in
// tests.
type Simulator struct {
	successRate int
	latency     time.Duration
	locker      lock.Locker

	mu       sync.Mutex
	rng      *rand.Rand
	statuses map[string]Status
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithSuccessRate sets the percentage of monetary operations that succeed.
// Values are clamped to [0, 100].
func WithSuccessRate(rate int) SimulatorOption {
	return func(s *Simulator) {
		if rate < 0 {
			rate = 0
		}
		if rate > 100 {
			rate = 100
		}
		s.successRate = rate
	}
}

// WithLatency sets the simulated processor round-trip time.
func WithLatency(latency time.Duration) SimulatorOption {
	return func(s *Simulator) {
		s.latency = latency
	}
}

// WithSeed seeds the outcome source for reproducible sequences.
func WithSeed(seed uint64) SimulatorOption {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithLocker sets the locker used to serialize work on each in-flight
// transaction id.
func WithLocker(locker lock.Locker) SimulatorOption {
	return func(s *Simulator) {
		s.locker = locker
	}
}

// NewSimulator creates a simulated gateway with a 95% success rate and
// 50ms latency by default.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		successRate: 95,
		latency:     50 * time.Millisecond,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		statuses:    make(map[string]Status),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Authorize(ctx context.Context, req ChargeRequest) (*Result, error) {
	if req.CardFunded() {
		if err := s.ValidatePaymentMethod(req.Card); err != nil {
			return nil, err
		}
	}
	return s.monetaryOp(ctx, TxAuthOnly, req.Amount, req.Currency, refPrefixAuth, StatusAuthorized)
}

func (s *Simulator) Capture(ctx context.Context, reference string, amount decimal.Decimal, currency string) (*Result, error) {
	if err := s.requireStatus(reference, StatusAuthorized); err != nil {
		return nil, err
	}
	res, err := s.monetaryOp(ctx, TxCapture, amount, currency, refPrefixCapture, StatusSuccessful)
	if err == nil {
		s.setStatus(reference, StatusSuccessful)
	}
	return res, err
}

func (s *Simulator) ProcessPayment(ctx context.Context, req ChargeRequest) (*Result, error) {
	if req.CardFunded() {
		if err := s.ValidatePaymentMethod(req.Card); err != nil {
			return nil, err
		}
	}
	return s.monetaryOp(ctx, TxPayment, req.Amount, req.Currency, refPrefixPayment, StatusSuccessful)
}

func (s *Simulator) ProcessRefund(ctx context.Context, reference string, amount decimal.Decimal, currency string) (*Result, error) {
	if err := s.requireStatus(reference, StatusSuccessful); err != nil {
		return nil, err
	}
	return s.monetaryOp(ctx, TxRefund, amount, currency, refPrefixRefund, StatusSuccessful)
}

func (s *Simulator) Void(ctx context.Context, reference string) (*Result, error) {
	if err := s.requireStatus(reference, StatusAuthorized); err != nil {
		return nil, err
	}
	res, err := s.monetaryOp(ctx, TxVoid, decimal.Zero, "", refPrefixVoid, StatusVoided)
	if err == nil {
		s.setStatus(reference, StatusVoided)
	}
	return res, err
}

func (s *Simulator) Tokenize(ctx context.Context, card Card) (string, error) {
	if err := s.ValidatePaymentMethod(card); err != nil {
		return "", err
	}
	if err := s.sleep(ctx); err != nil {
		return "", err
	}
	return refPrefixToken + shortID(), nil
}

func (s *Simulator) CheckStatus(ctx context.Context, reference string) (Status, error) {
	if err := s.sleep(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	status, ok := s.statuses[reference]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownReference, reference)
	}
	return status, nil
}

// ValidatePaymentMethod checks card number plausibility (Luhn) and expiry.
// Structural failures never consume the simulated latency.
func (s *Simulator) ValidatePaymentMethod(card Card) error {
	number := strings.ReplaceAll(card.Number, " ", "")
	if len(number) < 12 || len(number) > 19 {
		return fmt.Errorf("%w: card number length", ErrInvalidPaymentMethod)
	}
	if !luhnValid(number) {
		return fmt.Errorf("%w: card number checksum", ErrInvalidPaymentMethod)
	}
	if card.ExpiryMonth < 1 || card.ExpiryMonth > 12 {
		return fmt.Errorf("%w: expiry month", ErrInvalidPaymentMethod)
	}
	now := time.Now()
	if card.ExpiryYear < now.Year() ||
		(card.ExpiryYear == now.Year() && card.ExpiryMonth < int(now.Month())) {
		return fmt.Errorf("%w: card expired", ErrInvalidPaymentMethod)
	}
	return nil
}

// monetaryOp runs the common monetary flow: a fresh transaction id locked
// for the duration of the round trip, simulated latency, then a
// pseudo-random outcome at the configured success rate.
func (s *Simulator) monetaryOp(ctx context.Context, txType TxType, amount decimal.Decimal, currency, refPrefix string, successStatus Status) (*Result, error) {
	txID := uuid.New().String()

	if s.locker != nil {
		handle, err := s.locker.Acquire(ctx, []string{"gateway:tx:" + txID}, txLockTTL)
		if err != nil {
			return nil, err
		}
		defer handle.Release(ctx)
	}

	if err := s.sleep(ctx); err != nil {
		return nil, err
	}

	res := &Result{
		TransactionID: txID,
		Type:          txType,
		Amount:        amount,
		Currency:      currency,
		Reference:     refPrefix + shortID(),
		CreatedAt:     time.Now(),
	}

	if !s.roll() {
		res.Status = StatusFailed
		res.ErrorCode = errCodeDeclined
		s.setStatus(res.Reference, StatusFailed)
		return res, fmt.Errorf("%w: %s", ErrDeclined, errCodeDeclined)
	}

	res.Status = successStatus
	res.AuthCode = authCode()
	s.setStatus(res.Reference, successStatus)
	return res, nil
}

func (s *Simulator) roll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(100) < s.successRate
}

func (s *Simulator) sleep(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.latency):
		return nil
	}
}

func (s *Simulator) setStatus(reference string, status Status) {
	s.mu.Lock()
	s.statuses[reference] = status
	s.mu.Unlock()
}

func (s *Simulator) requireStatus(reference string, want Status) error {
	s.mu.Lock()
	status, ok := s.statuses[reference]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReference, reference)
	}
	if status != want {
		return fmt.Errorf("%w: reference %s is %s", ErrDeclined, reference, status)
	}
	return nil
}

// luhnValid reports whether the digit string passes the Luhn checksum.
func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func shortID() string {
	return uuid.New().String()[:8]
}

func authCode() string {
	return strings.ToUpper(uuid.New().String()[:6])
}

var _ Gateway = (*Simulator)(nil)
