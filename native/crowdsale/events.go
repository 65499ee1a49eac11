package crowdsale

import (
	"math/big"
	"strconv"

	"crowdsale/core/events"
	"crowdsale/core/types"
	"crowdsale/crypto"
)

const (
	// EventTypeInitialized is emitted once when the sale is created.
	EventTypeInitialized = "crowdsale.initialized"
	// EventTypeWindowUpdated is emitted when the start or finish time moves.
	EventTypeWindowUpdated = "crowdsale.window.updated"
	// EventTypeEligibilityChanged is emitted for every list membership change.
	EventTypeEligibilityChanged = "crowdsale.eligibility.changed"
	// EventTypeDepositRecorded is emitted for every accepted contribution.
	EventTypeDepositRecorded = "crowdsale.deposit.recorded"
	// EventTypeRatesUpdated is emitted when a new rate snapshot is accepted.
	EventTypeRatesUpdated = "crowdsale.rates.updated"
	// EventTypeWithdrawn is emitted when an eligible investor settles.
	EventTypeWithdrawn = "crowdsale.withdrawn"
	// EventTypeRefunded is emitted when an ineligible investor is refunded.
	EventTypeRefunded = "crowdsale.refunded"
	// EventTypeFinalized is emitted when the issuer collects the raise.
	EventTypeFinalized = "crowdsale.finalized"
	// EventTypeClockSet is emitted when the debug clock is moved.
	EventTypeClockSet = "crowdsale.clock.set"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func accountString(addr [20]byte) string {
	return crypto.NewAddress(crypto.AccountPrefix, append([]byte(nil), addr[:]...)).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func timeString(ts int64) string { return strconv.FormatInt(ts, 10) }

// InitializedEvent describes the sale window chosen at initialisation.
func InitializedEvent(start, finish int64, allocations int) *types.Event {
	return &types.Event{
		Type: EventTypeInitialized,
		Attributes: map[string]string{
			"start":       timeString(start),
			"finish":      timeString(finish),
			"allocations": strconv.Itoa(allocations),
		},
	}
}

// WindowUpdatedEvent reports the sale window after an adjustment.
func WindowUpdatedEvent(start, finish int64) *types.Event {
	return &types.Event{
		Type: EventTypeWindowUpdated,
		Attributes: map[string]string{
			"start":  timeString(start),
			"finish": timeString(finish),
		},
	}
}

// EligibilityChangedEvent reports a list membership change and the totals
// after it was applied.
func EligibilityChangedEvent(list ListKind, account [20]byte, member bool, sale *Sale) *types.Event {
	return &types.Event{
		Type: EventTypeEligibilityChanged,
		Attributes: map[string]string{
			"list":      list.String(),
			"account":   accountString(account),
			"member":    strconv.FormatBool(member),
			"totalBase": amountString(sale.TotalBase),
			"totalUsd":  amountString(sale.TotalUSD),
		},
	}
}

// DepositRecordedEvent reports an accepted contribution.
func DepositRecordedEvent(dep *Deposit, eligible bool) *types.Event {
	return &types.Event{
		Type: EventTypeDepositRecorded,
		Attributes: map[string]string{
			"depositId": strconv.FormatUint(dep.ID, 10),
			"investor":  accountString(dep.Investor),
			"amount":    amountString(dep.Base),
			"usd":       amountString(dep.USD),
			"units":     amountString(dep.Units),
			"eligible":  strconv.FormatBool(eligible),
			"timestamp": timeString(dep.Timestamp),
		},
	}
}

// RatesUpdatedEvent reports the accepted rate snapshot and the resulting
// phase flags.
func RatesUpdatedEvent(sale *Sale) *types.Event {
	return &types.Event{
		Type: EventTypeRatesUpdated,
		Attributes: map[string]string{
			"baseUsd":         sale.Rates.BaseUSD.String(),
			"secondaryUsd":    sale.Rates.SecondaryUSD.String(),
			"secondaryRaised": sale.Rates.SecondaryRaised.String(),
			"unitsPerUsd":     sale.Rates.UnitsPerUSD.String(),
			"validUntil":      timeString(sale.ValidUntil),
			"totalUsd":        amountString(sale.TotalUSD),
			"finished":        strconv.FormatBool(sale.Finished),
			"hardcapReached":  strconv.FormatBool(sale.HardcapReached),
		},
	}
}

// WithdrawnEvent reports the settlement paid to an eligible investor.
func WithdrawnEvent(investor [20]byte, refund, units *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"investor": accountString(investor),
			"refund":   amountString(refund),
			"units":    amountString(units),
		},
	}
}

// RefundedEvent reports a full refund to an ineligible investor.
func RefundedEvent(investor [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRefunded,
		Attributes: map[string]string{
			"investor": accountString(investor),
			"amount":   amountString(amount),
		},
	}
}

// FinalizedEvent reports the issuer's share of the raise.
func FinalizedEvent(issuer [20]byte, amount *big.Int, unlocked bool) *types.Event {
	return &types.Event{
		Type: EventTypeFinalized,
		Attributes: map[string]string{
			"issuer":   accountString(issuer),
			"amount":   amountString(amount),
			"unlocked": strconv.FormatBool(unlocked),
		},
	}
}

// ClockSetEvent reports a debug clock override.
func ClockSetEvent(ts int64) *types.Event {
	return &types.Event{
		Type:       EventTypeClockSet,
		Attributes: map[string]string{"clock": timeString(ts)},
	}
}
