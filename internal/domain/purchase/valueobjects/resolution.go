package valueobjects

// Resolution records how a transaction left the active state.
type Resolution string

const (
	ResolutionNone Resolution = ""
	// ResolutionSettled means the amount due was received and the token transfer was requested.
	ResolutionSettled Resolution = "settled"
	// ResolutionExpired means nothing was received before expiry.
	ResolutionExpired Resolution = "expired"
	// ResolutionUnsettled means a partial payment was received before expiry.
	// These need an operator; nothing is refunded automatically.
	ResolutionUnsettled Resolution = "unsettled"
)

func (r Resolution) String() string {
	return string(r)
}

func (r Resolution) IsFinal() bool {
	return r != ResolutionNone
}
