// Package execution holds the fee model and the policy that decides how an
// entry or exit order is worked (maker, taker, fok or maker_then_taker).
package execution

// takerFeeRate is the coefficient of the taker fee curve.
const takerFeeRate = 0.125

// TakerFee returns the per-share taker fee at price:
// 0.125 * (price * (1 - price))^2. It peaks at 0.5 and vanishes at 0 and 1.
func TakerFee(price float64) float64 {
	x := price * (1 - price)
	return takerFeeRate * x * x
}

// TakerFeePct returns the taker fee as a percentage of price. It is 0 when
// price is 0.
func TakerFeePct(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return TakerFee(price) / price * 100
}

// RoundTripFee is the fee paid on shares when both legs cross the spread.
func RoundTripFee(entry, exit, shares float64) float64 {
	return (TakerFee(entry) + TakerFee(exit)) * shares
}
