package creditledger

import "github.com/xraph/creditledger/id"

// ID is the primary identifier type for all ledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// CreditID and EntryID are re-exported for callers that only import the
// root package.
type (
	CreditID = id.CreditID
	EntryID  = id.EntryID
)
