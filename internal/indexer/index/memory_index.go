// Package index buffers analysed documents in memory until the writer
// flushes them into an immutable segment.
package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
)

type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]PostingList
	norms    map[schema.Field][]uint32
	stored   [][]document.FieldValue
	docCount uint32
	size     int64
}

// Snapshot is the sorted, immutable content of a MemoryIndex.
type Snapshot struct {
	Terms    []TermEntry
	Norms    map[schema.Field][]uint32
	Stored   [][]document.FieldValue
	DocCount uint32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]PostingList),
		norms: make(map[schema.Field][]uint32),
	}
}

// AddDocument appends an analysed document and returns its local doc id.
func (m *MemoryIndex) AddDocument(doc AnalyzedDoc) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	docID := m.docCount
	for key, occ := range doc.Terms {
		m.index[key] = append(m.index[key], Posting{
			DocID:     docID,
			Frequency: occ.Frequency,
			Positions: occ.Positions,
		})
	}
	for field, n := range doc.Norms {
		col := m.norms[field]
		for uint32(len(col)) < docID {
			col = append(col, 0)
		}
		m.norms[field] = append(col, n)
	}
	m.stored = append(m.stored, doc.Stored)
	m.size += doc.Size()
	m.docCount++
	return docID
}

// Search returns the buffered postings of a term key.
func (m *MemoryIndex) Search(key []byte) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	postings, exists := m.index[string(key)]
	if !exists {
		return nil
	}
	result := make(PostingList, len(postings))
	copy(result, postings)
	return result
}

// Snapshot returns term entries sorted by key and norm columns padded to
// DocCount.
func (m *MemoryIndex) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for key, postings := range m.index {
		entries = append(entries, TermEntry{
			Key:      []byte(key),
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Key) < string(entries[j].Key)
	})
	norms := make(map[schema.Field][]uint32, len(m.norms))
	for field, col := range m.norms {
		padded := make([]uint32, m.docCount)
		copy(padded, col)
		norms[field] = padded
	}
	stored := make([][]document.FieldValue, len(m.stored))
	copy(stored, m.stored)
	return Snapshot{
		Terms:    entries,
		Norms:    norms,
		Stored:   stored,
		DocCount: m.docCount,
	}
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(m.docCount)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]PostingList)
	m.norms = make(map[schema.Field][]uint32)
	m.stored = nil
	m.docCount = 0
	m.size = 0
}
