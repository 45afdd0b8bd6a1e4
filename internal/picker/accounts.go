package picker

import "bizbook/core/internal/domain"

// ReservedAccounts are system ledgers that can never be the source or target
// of a banking transfer.
var ReservedAccounts = []string{
	"Opening Balance Equity",
	"Undeposited Funds",
	"Retained Earnings",
}

// TransferAccounts is the account picker used by banking transfers.
func TransferAccounts(source Source[domain.Account], opts ...Option) *Picker[domain.Account] {
	opts = append([]Option{WithExclusions(ReservedAccounts...)}, opts...)
	return New[domain.Account](source, opts...)
}
