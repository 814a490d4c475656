package index

// Posting is one document occurrence of a term inside a segment.
type Posting struct {
	DocID     uint32   `msgpack:"d"`
	Frequency uint32   `msgpack:"f"`
	Positions []uint32 `msgpack:"p,omitempty"`
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting

// TermEntry is a term key with its postings.
type TermEntry struct {
	Key      []byte
	Postings PostingList
}

// Occurrence collects the positions of one term inside one document.
type Occurrence struct {
	Frequency uint32
	Positions []uint32
}
