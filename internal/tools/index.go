package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/auditflow/internal/agent"
	fgerrors "github.com/randalmurphal/auditflow/pkg/flowgraph/errors"
)

// Document is an ingested audit document.
type Document struct {
	Source  string `yaml:"source" json:"source"`
	Content string `yaml:"content" json:"content"`
}

type corpusFile struct {
	Documents []Document `yaml:"documents"`
}

// LoadCorpus reads a YAML corpus file of the form
//
//	documents:
//	  - source: hk-audit-2024.pdf
//	    content: |
//	      Finding HK-2024-001 ...
func LoadCorpus(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var file corpusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	for i, doc := range file.Documents {
		if strings.TrimSpace(doc.Content) == "" {
			return nil, &fgerrors.ValidationError{
				Field:   fmt.Sprintf("documents[%d].content", i),
				Message: "content is required",
			}
		}
	}
	return file.Documents, nil
}

// MemoryIndex is an in-process keyword index over ingested documents.
// Relevance is the share of distinct query terms a document contains.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs []indexedDoc
}

type indexedDoc struct {
	Document
	terms map[string]struct{}
}

var _ agent.Retriever = (*MemoryIndex)(nil)

// NewMemoryIndex returns an index holding docs.
func NewMemoryIndex(docs ...Document) *MemoryIndex {
	idx := &MemoryIndex{}
	idx.Add(docs...)
	return idx
}

// Add ingests docs.
func (idx *MemoryIndex) Add(docs ...Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, d := range docs {
		idx.docs = append(idx.docs, indexedDoc{Document: d, terms: termSet(d.Content)})
	}
}

// Len returns the number of ingested documents.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search returns up to topK documents sharing at least one term with
// query, best first. Ties keep ingestion order.
func (idx *MemoryIndex) Search(ctx context.Context, query string, topK int) ([]agent.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := termSet(query)
	if len(q) == 0 || topK <= 0 {
		return []agent.SearchHit{}, nil
	}

	idx.mu.RLock()
	hits := make([]agent.SearchHit, 0, len(idx.docs))
	for _, d := range idx.docs {
		matched := 0
		for term := range q {
			if _, ok := d.terms[term]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, agent.SearchHit{
			Content:   d.Content,
			Source:    d.Source,
			Relevance: float64(matched) / float64(len(q)),
		})
	}
	idx.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Relevance > hits[j].Relevance
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// termSet lower-cases text and splits it on anything that is not a letter,
// digit or hyphen, so finding ids such as HK-2024-001 stay whole.
func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len(f) < 2 {
			continue
		}
		terms[f] = struct{}{}
	}
	return terms
}
