package vaulterr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by what the caller can do about it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindStateConflict
	KindTemporalGuard
	KindQuotaExceeded
	KindLiquidityShortfall
	KindAuthorization
	KindInvariantViolation
	KindPaused
	KindReentrancy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindTemporalGuard:
		return "temporal_guard"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindLiquidityShortfall:
		return "liquidity_shortfall"
	case KindAuthorization:
		return "authorization"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindPaused:
		return "paused"
	case KindReentrancy:
		return "reentrancy"
	default:
		return "unknown"
	}
}

// Validation errors
var (
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrZeroAddress         = errors.New("address must not be empty")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroShares          = errors.New("deposit would mint zero shares")
	ErrInvalidChannel      = errors.New("invalid redemption channel")
	ErrInvalidTier         = errors.New("invalid liquidity tier")
	ErrFeeTooHigh          = errors.New("fee exceeds administrative ceiling")
	ErrInvalidRatio        = errors.New("ratio exceeds basis points denominator")
	ErrUnknownAsset        = errors.New("asset not registered")
	ErrAssetInactive       = errors.New("asset is not active")
	ErrAssetExists         = errors.New("asset already registered")
	ErrUnknownRequest      = errors.New("redemption request not found")
	ErrUnknownVoucher      = errors.New("voucher not found")
)

// State conflict errors
var (
	ErrNotPendingApproval    = errors.New("request is not pending approval")
	ErrNotSettleable         = errors.New("request is not pending or approved")
	ErrEmergencyModeDisabled = errors.New("emergency channel is disabled")
	ErrNoVoucherIssuer       = errors.New("voucher issuer not configured")
	ErrNotVoucherHolder      = errors.New("caller is not the voucher holder")
)

// Temporal guard errors
var (
	ErrSettlementTimeNotReached = errors.New("settlement time not reached")
	ErrInvalidSettlementTime    = errors.New("settlement time below minimum delay")
)

// Quota errors
var (
	ErrEmergencyQuotaExceeded = errors.New("emergency quota exceeded")
	ErrLayerRatioExceeded     = errors.New("layer ratio bound exceeded")
	ErrSlippageExceeded       = errors.New("swap proceeds below slippage bound")
)

// Liquidity errors
var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// Authorization errors
var (
	ErrUnauthorized = errors.New("caller lacks required capability")
)

// Invariant errors
var (
	ErrArithmeticUnderflow = errors.New("arithmetic underflow")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrDivisionByZero      = errors.New("division by zero")
)

// Lifecycle errors
var (
	ErrPaused        = errors.New("operation paused")
	ErrReentrantCall = errors.New("reentrant call")
)

var sentinelKinds = map[error]Kind{
	ErrZeroAmount:               KindValidation,
	ErrZeroAddress:              KindValidation,
	ErrInsufficientShares:       KindValidation,
	ErrInsufficientBalance:      KindValidation,
	ErrZeroShares:               KindValidation,
	ErrInvalidChannel:           KindValidation,
	ErrInvalidTier:              KindValidation,
	ErrFeeTooHigh:               KindValidation,
	ErrInvalidRatio:             KindValidation,
	ErrUnknownAsset:             KindValidation,
	ErrAssetInactive:            KindValidation,
	ErrAssetExists:              KindValidation,
	ErrUnknownRequest:           KindValidation,
	ErrUnknownVoucher:           KindValidation,
	ErrNotPendingApproval:       KindStateConflict,
	ErrNotSettleable:            KindStateConflict,
	ErrEmergencyModeDisabled:    KindStateConflict,
	ErrNoVoucherIssuer:          KindStateConflict,
	ErrNotVoucherHolder:         KindAuthorization,
	ErrSettlementTimeNotReached: KindTemporalGuard,
	ErrInvalidSettlementTime:    KindTemporalGuard,
	ErrEmergencyQuotaExceeded:   KindQuotaExceeded,
	ErrLayerRatioExceeded:       KindQuotaExceeded,
	ErrSlippageExceeded:         KindQuotaExceeded,
	ErrInsufficientLiquidity:    KindLiquidityShortfall,
	ErrUnauthorized:             KindAuthorization,
	ErrArithmeticUnderflow:      KindInvariantViolation,
	ErrArithmeticOverflow:       KindInvariantViolation,
	ErrDivisionByZero:           KindInvariantViolation,
	ErrPaused:                   KindPaused,
	ErrReentrantCall:            KindReentrancy,
}

// Error attaches the failing operation and a kind to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err for op. The kind is taken from the first known sentinel in the
// chain, so callers normally only pass a sentinel.
func E(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// Ef is E with extra formatted context appended to the sentinel.
func Ef(op string, err error, format string, args ...any) error {
	return &Error{Kind: KindOf(err), Op: op, Err: fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))}
}

// KindOf classifies err. Unknown errors (storage, collaborators) report KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnknown {
		return e.Kind
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// Retryable reports whether the same call may succeed later without new input.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTemporalGuard, KindQuotaExceeded, KindLiquidityShortfall:
		return true
	default:
		return false
	}
}
