package utils

import (
	"math"

	"chipereganyu-settlement/internal/domain"
)

const basisPointsDenominator = 10000

// FeeSchedule holds the fee rates in basis points (1 bps = 0.01%).
type FeeSchedule struct {
	ReserveBps  int64
	PlatformBps int64
}

// DefaultFeeSchedule is 1% to the safety reserve and 7% to the platform.
var DefaultFeeSchedule = FeeSchedule{ReserveBps: 100, PlatformBps: 700}

// TotalBps returns the combined fee rate.
func (s FeeSchedule) TotalBps() int64 {
	return s.ReserveBps + s.PlatformBps
}

// Valid reports whether the schedule leaves a positive share for the recipient.
func (s FeeSchedule) Valid() bool {
	return s.ReserveBps >= 0 && s.PlatformBps >= 0 && s.TotalBps() < basisPointsDenominator
}

// ComputeFeesFromGross splits a gross amount into reserve fee, platform fee
// and net amount. Each fee is rounded half-up on its own; the net amount
// absorbs the rounding so that NetAmount + TotalFees == GrossAmount.
func (s FeeSchedule) ComputeFeesFromGross(gross int64) (domain.FeeBreakdown, error) {
	if gross <= 0 || gross > math.MaxInt64/basisPointsDenominator {
		return domain.FeeBreakdown{}, domain.ErrInvalidAmount
	}
	if !s.Valid() {
		return domain.FeeBreakdown{}, domain.NewError(domain.KindInvalidAmount, "invalid fee schedule %d/%d bps", s.ReserveBps, s.PlatformBps)
	}

	reserve := applyBps(gross, s.ReserveBps)
	platform := applyBps(gross, s.PlatformBps)
	total := reserve + platform
	net := gross - total
	if net <= 0 {
		return domain.FeeBreakdown{}, domain.NewError(domain.KindInvalidAmount, "amount %d does not cover fees", gross)
	}

	return domain.FeeBreakdown{
		GrossAmount: gross,
		ReserveFee:  reserve,
		PlatformFee: platform,
		TotalFees:   total,
		NetAmount:   net,
	}, nil
}

// ComputeGrossFromNet finds the gross amount whose net is (within one unit)
// the requested net amount, then derives the breakdown from that gross.
func (s FeeSchedule) ComputeGrossFromNet(net int64) (domain.FeeBreakdown, error) {
	if net <= 0 || net > math.MaxInt64/(2*basisPointsDenominator) {
		return domain.FeeBreakdown{}, domain.ErrInvalidAmount
	}
	if !s.Valid() {
		return domain.FeeBreakdown{}, domain.NewError(domain.KindInvalidAmount, "invalid fee schedule %d/%d bps", s.ReserveBps, s.PlatformBps)
	}

	// round(net * 10000 / (10000 - total)), half-up
	denom := basisPointsDenominator - s.TotalBps()
	gross := (2*net*basisPointsDenominator + denom) / (2 * denom)
	return s.ComputeFeesFromGross(gross)
}

// ComputeFeesFromGross uses DefaultFeeSchedule.
func ComputeFeesFromGross(gross int64) (domain.FeeBreakdown, error) {
	return DefaultFeeSchedule.ComputeFeesFromGross(gross)
}

// ComputeGrossFromNet uses DefaultFeeSchedule.
func ComputeGrossFromNet(net int64) (domain.FeeBreakdown, error) {
	return DefaultFeeSchedule.ComputeGrossFromNet(net)
}

func applyBps(amount, bps int64) int64 {
	return (amount*bps + basisPointsDenominator/2) / basisPointsDenominator
}
