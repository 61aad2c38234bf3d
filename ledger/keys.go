package ledger

// =============================================================================
// DETERMINISTIC KEYS - Composite ids derived from the owning source
// =============================================================================

// Suffix names one posting line of a source document.
type Suffix string

const (
	// Bill lines
	SuffixMain      Suffix = "main"
	SuffixDetention Suffix = "detention"
	SuffixExtra     Suffix = "extra"
	SuffixRTO       Suffix = "rto"
	SuffixTDS       Suffix = "tds"
	SuffixPenalties Suffix = "penalties"
	SuffixMamool    Suffix = "mamool"

	// Memo lines (detention and extra are shared with bills)
	SuffixFreight  Suffix = "freight"
	SuffixSupplier Suffix = "supplier"

	// Cash entry lines
	SuffixVehicle Suffix = "vehicle"
	SuffixParty   Suffix = "party"
	SuffixGeneral Suffix = "general"
	SuffixMirror  Suffix = "mirror"

	// Shared
	SuffixCommission Suffix = "commission"
	SuffixFuel       Suffix = "fuel"

	// Records injected into other documents
	SuffixAdvance      Suffix = "advance"
	SuffixPayment      Suffix = "payment"
	SuffixWalletCredit Suffix = "wallet"
)

// EntryID returns the composite key of the posting line suffix of sourceID,
// e.g. EntryID("bill-7", SuffixDetention) = "bill-7-detention".
//
// The id is for addressing a single line. Locating every posting of a source
// goes through (SourceType, SourceID), never through a prefix match on ids:
// "B1-" is a prefix of "B1-main" but also "B1" is a prefix of "B10-main".
func EntryID(sourceID string, suffix Suffix) string {
	return sourceID + "-" + string(suffix)
}

// AdvanceID is the id of the advance payment sourceID injects into a bill or memo.
func AdvanceID(sourceID string) string { return EntryID(sourceID, SuffixAdvance) }

// PaymentID is the id of the settlement record sourceID injects into a bill or memo.
func PaymentID(sourceID string) string { return EntryID(sourceID, SuffixPayment) }

// WalletCreditID is the id of the wallet_credit fuel transaction sourceID creates.
func WalletCreditID(sourceID string) string { return EntryID(sourceID, SuffixWalletCredit) }
