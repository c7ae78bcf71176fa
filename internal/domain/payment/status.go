package payment

// TransactionStatus is the only status vocabulary exposed by processors.
// Vendor status codes are mapped onto it inside each adapter.
type TransactionStatus string

const (
	Successful  TransactionStatus = "successful"
	Failed      TransactionStatus = "failed"
	Unprocessed TransactionStatus = "unprocessed"
)

// IsTerminal reports whether the status settles a payment.
func (s TransactionStatus) IsTerminal() bool {
	return s == Successful || s == Failed
}

// PaymentStatus represents the stored state of a payment record
type PaymentStatus string

const (
	StatusUnprocessed PaymentStatus = "UP"
	StatusCompleted   PaymentStatus = "CM"
	StatusFailed      PaymentStatus = "FD"
)

// IsTerminal reports whether the record can no longer change.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Label returns the human readable name of the status.
func (s PaymentStatus) Label() string {
	switch s {
	case StatusUnprocessed:
		return "Unprocessed"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}
