// Package keywords provides a case-insensitive multi-keyword matcher backed by
// an Aho-Corasick automaton. Each keyword maps back to every record that owns
// it, so a single scan of the text yields per-record occurrence counts.
package keywords

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// ErrIndexBuild is returned when the keyword automaton cannot be constructed.
var ErrIndexBuild = errors.New("keyword index build failed")

// Match is a single non-overlapping keyword occurrence in scanned text.
type Match struct {
	Keyword string
	Start   int
	End     int
}

// Index maps a deduplicated, lowercased keyword vocabulary to owning records.
// An Index is immutable after construction and safe for concurrent use.
type Index struct {
	trie      *ahocorasick.Trie
	keywords  []string
	owners    [][]int
	positions map[string]int
}

// New builds an index where records[i] lists the keywords owned by record i.
// Keywords are lowercased; empty keywords are ignored. The vocabulary keeps
// first-seen order, which decides ties between keywords starting at the same
// offset.
func New(records [][]string) (idx *Index, err error) {
	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("%w: %v", ErrIndexBuild, r)
		}
	}()

	idx = &Index{positions: make(map[string]int)}
	positions := idx.positions
	for record, kws := range records {
		for _, kw := range kws {
			lower := strings.ToLower(kw)
			if lower == "" {
				continue
			}
			pos, ok := positions[lower]
			if !ok {
				pos = len(idx.keywords)
				positions[lower] = pos
				idx.keywords = append(idx.keywords, lower)
				idx.owners = append(idx.owners, nil)
			}
			owners := idx.owners[pos]
			if len(owners) == 0 || owners[len(owners)-1] != record {
				idx.owners[pos] = append(owners, record)
			}
		}
	}

	if len(idx.keywords) > 0 {
		idx.trie = ahocorasick.NewTrieBuilder().AddStrings(idx.keywords).Build()
		if idx.trie == nil {
			return nil, fmt.Errorf("%w: empty automaton for %d keywords", ErrIndexBuild, len(idx.keywords))
		}
	}

	return idx, nil
}

// Len returns the size of the deduplicated vocabulary.
func (x *Index) Len() int {
	return len(x.keywords)
}

// Keywords returns a copy of the vocabulary in first-seen order.
func (x *Index) Keywords() []string {
	out := make([]string, len(x.keywords))
	copy(out, x.keywords)
	return out
}

// Owners returns the records owning keyword, or nil if it is not indexed.
func (x *Index) Owners(keyword string) []int {
	if pos, ok := x.positions[strings.ToLower(keyword)]; ok {
		return x.owners[pos]
	}
	return nil
}

// Matches scans text case-insensitively and returns the leftmost-first,
// non-overlapping keyword occurrences in order of appearance.
func (x *Index) Matches(text string) []Match {
	hits := x.scan(text)
	if len(hits) == 0 {
		return nil
	}

	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = Match{Keyword: x.keywords[h.kw], Start: h.pos, End: h.end}
	}
	return out
}

// Count scans text and returns, per owning record, the number of keyword
// occurrences attributed to it. Records without occurrences are absent.
func (x *Index) Count(text string) map[int]int {
	hits := x.scan(text)
	if len(hits) == 0 {
		return nil
	}

	counts := make(map[int]int)
	for _, h := range hits {
		for _, record := range x.owners[h.kw] {
			counts[record]++
		}
	}
	return counts
}

type hit struct {
	pos, end, kw int
}

// scan emulates leftmost-first semantics over the automaton's overlapping
// output: earliest start wins, then the earliest keyword in the vocabulary.
func (x *Index) scan(text string) []hit {
	if x.trie == nil || text == "" {
		return nil
	}

	raw := x.trie.MatchString(strings.ToLower(text))
	if len(raw) == 0 {
		return nil
	}

	hits := make([]hit, 0, len(raw))
	for _, m := range raw {
		kw := int(m.Pattern())
		start := int(m.Pos())
		hits = append(hits, hit{pos: start, end: start + len(x.keywords[kw]), kw: kw})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].kw < hits[j].kw
	})

	out := hits[:0]
	cursor := 0
	for _, h := range hits {
		if h.pos < cursor {
			continue
		}
		out = append(out, h)
		cursor = h.end
	}
	return out
}
