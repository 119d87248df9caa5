package enums

// PaymentEventType identifies the webhook envelope types the ingestor understands.
// Unknown types are acknowledged and ignored for forward compatibility, so
// there is deliberately no IsValid gate here.
type PaymentEventType string

const (
	PaymentEventSuccess        PaymentEventType = "payment.success"
	PaymentEventDisputeCreated PaymentEventType = "payment.dispute.created"
	PaymentEventRefunded       PaymentEventType = "payment.refunded"
)

// String implements fmt.Stringer.
func (p PaymentEventType) String() string {
	return string(p)
}
