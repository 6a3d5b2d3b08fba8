// Package search provides a deterministic, concurrency-safe in-memory index
// over the published subsidy catalog.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Immutable after construction, so safe for concurrent use
//   - Deterministic scoring and ordering (stable order for ties)
//
// Text is normalised with NFKC and Unicode case folding, so full-width
// "ＩＴ導入" and half-width katakana match their canonical forms. Latin and
// digit runs become word tokens; kanji/kana runs become character bigrams,
// since Japanese has no word separators.
//
// Score is the share of query tokens found in the document, plus a bonus for
// tokens found in the title; Jaccard similarity breaks ties.
package search

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Document is one searchable catalog entry.
type Document struct {
	ID    string
	Title string
	Body  string
}

// Result is a ranked document ID with its score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// Option tunes New.
type Option func(*settings)

type settings struct {
	stopwords   tokenSet
	maxDocs     int
	titleWeight float64
}

func defaults() settings { return settings{titleWeight: 0.5} }

// WithStopwords drops the given words (normalised) from documents and queries.
func WithStopwords(words []string) Option {
	return func(s *settings) {
		set := tokenSet{}
		for _, w := range words {
			if w = Normalize(strings.TrimSpace(w)); w != "" {
				set[w] = struct{}{}
			}
		}
		if len(set) > 0 {
			s.stopwords = set
		}
	}
}

// WithMaxDocs caps how many documents are indexed.
func WithMaxDocs(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxDocs = n
		}
	}
}

// WithTitleWeight sets the bonus applied to the share of query tokens that
// occur in the title (default 0.5).
func WithTitleWeight(w float64) Option {
	return func(s *settings) {
		if w >= 0 {
			s.titleWeight = w
		}
	}
}

type entry struct {
	id    string
	all   tokenSet
	title tokenSet
}

type index struct {
	set     settings
	entries []entry
}

// New builds an Index from docs. Documents without an ID or any token are
// skipped.
func New(docs []Document, opts ...Option) Index {
	set := defaults()
	for _, apply := range opts {
		apply(&set)
	}
	ix := &index{set: set}
	for _, d := range docs {
		if set.maxDocs > 0 && len(ix.entries) == set.maxDocs {
			break
		}
		all := tokenize(d.Title+"\n"+d.Body, set.stopwords)
		if d.ID == "" || all == nil {
			continue
		}
		ix.entries = append(ix.entries, entry{id: d.ID, all: all, title: tokenize(d.Title, set.stopwords)})
	}
	return ix
}

func (ix *index) Len() int { return len(ix.entries) }

type hit struct {
	Result
	jaccard float64
}

// TopK returns up to k best-matching documents (10 when k <= 0). Ties on
// score go to the higher Jaccard similarity, then to the smaller ID.
func (ix *index) TopK(q string, k int) []Result {
	if k <= 0 {
		k = 10
	}
	query := tokenize(q, ix.set.stopwords)
	if query == nil {
		return nil
	}
	n := float64(len(query))

	var hits []hit
	for _, e := range ix.entries {
		common := query.shared(e.all)
		if common == 0 {
			continue
		}
		score := float64(common)/n + ix.set.titleWeight*float64(query.shared(e.title))/n
		union := len(query) + len(e.all) - common
		hits = append(hits, hit{Result{e.id, score}, float64(common) / float64(union)})
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.jaccard, a.jaccard); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if len(hits) == 0 {
		return nil
	}
	top := hits[:min(k, len(hits))]
	out := make([]Result, len(top))
	for i, h := range top {
		out[i] = h.Result
	}
	return out
}

// Normalize applies NFKC and case folding. A Caser is stateful, so each
// call gets its own.
func Normalize(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

type tokenSet map[string]struct{}

// shared counts the tokens present in both sets.
func (t tokenSet) shared(o tokenSet) int {
	small, large := t, o
	if len(small) > len(large) {
		small, large = large, small
	}
	n := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			n++
		}
	}
	return n
}

func isCJK(r rune) bool {
	return r == 'ー' || unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana)
}

// tokenizer accumulates the current run of word or CJK runes.
type tokenizer struct {
	stop tokenSet
	out  tokenSet
	run  []rune
	cjk  bool
}

func (z *tokenizer) emit(tok string) {
	if _, skip := z.stop[tok]; !skip {
		z.out[tok] = struct{}{}
	}
}

// flush emits the pending run: a word as is, a CJK run as overlapping
// bigrams, or a lone CJK rune by itself.
func (z *tokenizer) flush() {
	switch {
	case len(z.run) == 0:
	case !z.cjk || len(z.run) == 1:
		z.emit(string(z.run))
	default:
		for i := 1; i < len(z.run); i++ {
			z.emit(string(z.run[i-1 : i+1]))
		}
	}
	z.run = z.run[:0]
}

// tokenize returns the normalised token set of s, or nil when it has none.
func tokenize(s string, stop tokenSet) tokenSet {
	z := tokenizer{stop: stop, out: tokenSet{}}
	for _, r := range Normalize(s) {
		cjk := isCJK(r)
		if !cjk && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			z.flush()
			continue
		}
		if cjk != z.cjk {
			z.flush()
			z.cjk = cjk
		}
		z.run = append(z.run, r)
	}
	z.flush()
	if len(z.out) == 0 {
		return nil
	}
	return z.out
}
