package enums

import "fmt"

// TransactionType labels the purpose of a ledger transaction record.
type TransactionType string

const (
	TransactionTypeSale TransactionType = "sale"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeSale,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// TransactionStatus tracks the state of a ledger transaction record.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusCompleted,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
