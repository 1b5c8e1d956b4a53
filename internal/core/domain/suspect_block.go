package domain

// SuspectBlock is one row of the control table: a height whose internal
// transaction data was collated incorrectly and must be re-ingested.
// Rows are created out-of-band; this service only flips Corrected.
type SuspectBlock struct {
	BlockNumber int64
	Corrected   bool
}
