package crowdsale

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of them.
var (
	ErrAuthorizationDenied  = errors.New("crowdsale: authorization denied")
	ErrPreconditionViolated = errors.New("crowdsale: precondition violated")
	ErrInvariantBroken      = errors.New("crowdsale: invariant broken")
)

var (
	ErrNilState = fmt.Errorf("%w: state not configured", ErrInvariantBroken)

	ErrUnauthorized   = fmt.Errorf("%w: caller not permitted", ErrAuthorizationDenied)
	ErrNotInvestor    = fmt.Errorf("%w: caller is not the investor", ErrAuthorizationDenied)
	ErrNotNotifier    = fmt.Errorf("%w: caller is not the deposit notifier", ErrAuthorizationDenied)
	ErrDebugDisabled  = fmt.Errorf("%w: debug clock disabled", ErrAuthorizationDenied)
	ErrNotInitialized = fmt.Errorf("%w: sale not initialized", ErrPreconditionViolated)

	ErrAlreadyInitialized = fmt.Errorf("%w: sale already initialized", ErrPreconditionViolated)
	ErrInvalidWindow      = fmt.Errorf("%w: start must precede finish", ErrPreconditionViolated)
	ErrAlreadyStarted     = fmt.Errorf("%w: sale already started", ErrPreconditionViolated)
	ErrAlreadyEnded       = fmt.Errorf("%w: sale already ended", ErrPreconditionViolated)
	ErrNotStarted         = fmt.Errorf("%w: sale not started", ErrPreconditionViolated)
	ErrSaleEnded          = fmt.Errorf("%w: sale ended", ErrPreconditionViolated)
	ErrRatesStale         = fmt.Errorf("%w: rates not updated yet", ErrPreconditionViolated)
	ErrRatesStillFresh    = fmt.Errorf("%w: rates still valid", ErrPreconditionViolated)
	ErrHardcapReached     = fmt.Errorf("%w: hard cap reached", ErrPreconditionViolated)
	ErrBelowMinimum       = fmt.Errorf("%w: contribution below minimum", ErrPreconditionViolated)
	ErrAboveMaximum       = fmt.Errorf("%w: contribution above maximum", ErrPreconditionViolated)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be positive", ErrPreconditionViolated)
	ErrInvalidRate        = fmt.Errorf("%w: invalid rate", ErrPreconditionViolated)
	ErrInvalidValidity    = fmt.Errorf("%w: validity window must be positive", ErrPreconditionViolated)
	ErrSelfDeposit        = fmt.Errorf("%w: contract cannot contribute to itself", ErrPreconditionViolated)
	ErrSaleOpen           = fmt.Errorf("%w: sale still open", ErrPreconditionViolated)
	ErrSaleClosed         = fmt.Errorf("%w: sale closed", ErrPreconditionViolated)
	ErrAlreadyFinalized   = fmt.Errorf("%w: sale already finalized", ErrPreconditionViolated)
	ErrSettlementStarted  = fmt.Errorf("%w: settlement already started", ErrPreconditionViolated)
	ErrNotWhitelisted     = fmt.Errorf("%w: account not whitelisted", ErrPreconditionViolated)
	ErrWhitelisted        = fmt.Errorf("%w: account is whitelisted", ErrPreconditionViolated)
	ErrAlreadyListed      = fmt.Errorf("%w: account already listed", ErrPreconditionViolated)
	ErrNotListed          = fmt.Errorf("%w: account not listed", ErrPreconditionViolated)
	ErrGreylisted         = fmt.Errorf("%w: account is greylisted", ErrPreconditionViolated)
	ErrDuplicateAccount   = fmt.Errorf("%w: duplicate account in batch", ErrPreconditionViolated)
	ErrEmptyBatch         = fmt.Errorf("%w: empty batch", ErrPreconditionViolated)
	ErrNothingToWithdraw  = fmt.Errorf("%w: nothing to withdraw", ErrPreconditionViolated)
	ErrNothingToRefund    = fmt.Errorf("%w: nothing to refund", ErrPreconditionViolated)

	ErrUnitMismatch   = fmt.Errorf("%w: unit mismatch", ErrInvariantBroken)
	ErrNegativeTotal  = fmt.Errorf("%w: total would become negative", ErrInvariantBroken)
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrInvariantBroken)
	ErrAmountOverflow = fmt.Errorf("%w: amount exceeds 256 bits", ErrInvariantBroken)
	ErrInvalidParams  = fmt.Errorf("%w: invalid sale parameters", ErrInvariantBroken)
	ErrOverdraw       = fmt.Errorf("%w: settlement exceeds raised total", ErrInvariantBroken)
)

// Kind returns "authorization", "precondition", "invariant" or "" for errors
// that did not originate in the engine.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthorizationDenied):
		return "authorization"
	case errors.Is(err, ErrPreconditionViolated):
		return "precondition"
	case errors.Is(err, ErrInvariantBroken):
		return "invariant"
	default:
		return ""
	}
}
