package domain

type RefundWindow string

const (
	FullRefund    RefundWindow = "FULL_REFUND"
	PartialRefund RefundWindow = "PARTIAL_REFUND"
	NoRefund      RefundWindow = "NO_REFUND"
)

// RefundBreakdown is computed, never stored. Any value shown ahead of
// the actual cancellation is advisory; the engine recomputes it at
// cancellation time.
type RefundBreakdown struct {
	Window          RefundWindow `json:"time_window"`
	HoursUntilMatch float64      `json:"hours_until_match"`
	SlotsToCancel   int          `json:"total_slots_to_cancel"`
	RefundAmount    int64        `json:"refund_amount"`
}
