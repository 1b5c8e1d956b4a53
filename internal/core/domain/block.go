package domain

// Block represents an indexed chain block. Consensus marks whether this row
// is the canonical block at its height; the refetcher only ever clears it,
// the fetcher pipeline is what sets it back after re-ingestion.
type Block struct {
	Number    int64
	Hash      string
	Consensus bool
}
