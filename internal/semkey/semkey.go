// Package semkey derives deterministic cache keys from search queries.
//
// A semantic key is built from the query's extracted linguistic features
// (entities, nouns, verbs, question type, negation) rather than its raw
// text, so paraphrases that share the same bag of features collapse to a
// single cache entry. Derivation is pure: no I/O, same inputs always
// produce the same key.
package semkey

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

const (
	maxEntities = 3
	maxNouns    = 5
	maxVerbs    = 3

	signatureHexLen = 16
	contextHexLen   = 8
)

// Context scopes a key to a particular caller. Two identical queries under
// different Contexts produce different keys.
type Context struct {
	UserID   string
	Language string // defaults to "en"
	Domain   string // defaults to "general"
	Filters  any    // map entries are sorted before hashing; strings pass through
	// TimeWindow is bucketed to whole days so keys remain stable within a day.
	TimeWindow time.Time
}

// Options controls key derivation.
type Options struct {
	// Plain disables semantic feature extraction; the signature is then a
	// direct hash of the normalized query text.
	Plain bool
	// Context, when non-nil, appends a context signature to the key.
	Context *Context
	// Version is mixed into the signature so a change to the extraction
	// heuristics can invalidate old keys.
	Version string
}

// signature is the deterministically serialized feature bag.
type signature struct {
	Entities []string `json:"entities"`
	Nouns    []string `json:"nouns"`
	Verbs    []string `json:"verbs"`
	Question string   `json:"question"`
	Negative bool     `json:"negative"`
	Version  string   `json:"version,omitempty"`
}

// Derive produces the cache key for a query. The key format is
// "sem_<hex16>" (or "txt_<hex16>" in plain mode), optionally followed by
// "_ctx<hex8>" when a Context is supplied.
func Derive(query string, opts Options) string {
	normalized := Normalize(query)

	var prefix, sig string
	if opts.Plain {
		prefix = "txt"
		sig = hashHex(normalized+"|"+opts.Version, signatureHexLen)
	} else {
		prefix = "sem"
		features := extract(query, normalized)
		features.Version = opts.Version
		// json.Marshal on a struct emits fields in declaration order, so
		// the serialization is deterministic.
		raw, _ := json.Marshal(features)
		sig = hashHex(string(raw), signatureHexLen)
	}

	key := prefix + "_" + sig
	if opts.Context != nil {
		key += "_ctx" + contextSignature(opts.Context)
	}
	return key
}

// Normalize trims, lowercases, and collapses internal whitespace.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

var questionWords = map[string]bool{
	"who": true, "what": true, "where": true, "when": true, "why": true, "how": true,
}

var negationWords = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "without": true, "nor": true,
}

// stopWords filters tokens that carry no semantic weight.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "were": true, "to": true, "of": true, "and": true, "in": true,
	"that": true, "have": true, "has": true, "it": true, "for": true, "on": true,
	"with": true, "as": true, "you": true, "do": true, "does": true, "did": true,
	"at": true, "this": true, "but": true, "by": true, "from": true, "or": true,
	"i": true, "me": true, "my": true, "can": true, "could": true, "would": true,
	"should": true, "will": true, "about": true,
}

// commonVerbs catches frequent verbs the suffix heuristic misses.
var commonVerbs = map[string]bool{
	"work": true, "works": true, "use": true, "uses": true, "make": true,
	"makes": true, "find": true, "finds": true, "get": true, "gets": true,
	"run": true, "runs": true, "mean": true, "means": true, "cause": true,
	"causes": true, "compare": true, "compares": true, "explain": true,
	"explains": true, "affect": true, "affects": true,
}

// extract pulls the feature bag out of a query. Token lists are capped,
// then sorted lexicographically so source-text order never leaks into the
// serialized signature.
func extract(original, normalized string) signature {
	rawTokens := strings.Fields(strings.TrimSpace(original))

	// Entities are detected from the original casing before normalization
	// erases it: any capitalized token that is not a question word.
	entities := make([]string, 0, maxEntities)
	entitySet := make(map[string]bool)
	for _, tok := range rawTokens {
		cleaned := trimToken(tok)
		if cleaned == "" || !unicode.IsUpper([]rune(cleaned)[0]) {
			continue
		}
		lower := strings.ToLower(cleaned)
		if questionWords[lower] || stopWords[lower] || entitySet[lower] {
			continue
		}
		entitySet[lower] = true
		entities = append(entities, lower)
		if len(entities) == maxEntities {
			break
		}
	}

	tokens := strings.Fields(normalized)

	question := "none"
	if len(tokens) > 0 && questionWords[tokens[0]] {
		question = tokens[0]
	}

	negative := false
	nouns := make([]string, 0, maxNouns)
	verbs := make([]string, 0, maxVerbs)
	seen := make(map[string]bool)
	for _, tok := range tokens {
		cleaned := trimToken(tok)
		if strings.HasSuffix(cleaned, "n't") {
			negative = true
			continue
		}
		if negationWords[cleaned] {
			negative = true
			continue
		}
		if cleaned == "" || stopWords[cleaned] || questionWords[cleaned] || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		if looksLikeVerb(cleaned) {
			if len(verbs) < maxVerbs {
				verbs = append(verbs, cleaned)
			}
			continue
		}
		if len(nouns) < maxNouns {
			nouns = append(nouns, cleaned)
		}
	}

	sort.Strings(entities)
	sort.Strings(nouns)
	sort.Strings(verbs)

	return signature{
		Entities: entities,
		Nouns:    nouns,
		Verbs:    verbs,
		Question: question,
		Negative: negative,
	}
}

// looksLikeVerb applies suffix heuristics plus a small common-verb list.
// A real POS tagger is overkill for cache-key bucketing and would drag in
// nondeterministic model state.
func looksLikeVerb(token string) bool {
	if commonVerbs[token] {
		return true
	}
	if len(token) < 5 {
		return false
	}
	for _, suffix := range []string{"ing", "ize", "ise", "ify", "ated", "ened"} {
		if strings.HasSuffix(token, suffix) {
			return true
		}
	}
	return false
}

func trimToken(token string) string {
	return strings.Trim(token, ".,!?;:'\"-()[]{}")
}

// contextSignature hashes the caller context into a short stable digest.
func contextSignature(c *Context) string {
	language := c.Language
	if language == "" {
		language = "en"
	}
	domain := c.Domain
	if domain == "" {
		domain = "general"
	}

	filters := ""
	switch f := c.Filters.(type) {
	case nil:
	case string:
		filters = f
	case map[string]string:
		pairs := make([]string, 0, len(f))
		for k, v := range f {
			pairs = append(pairs, k+"="+v)
		}
		sort.Strings(pairs)
		filters = strings.Join(pairs, "&")
	default:
		// Fallback for arbitrary filter shapes: JSON with sorted map keys.
		raw, _ := json.Marshal(f)
		filters = string(raw)
	}

	window := ""
	if !c.TimeWindow.IsZero() {
		window = c.TimeWindow.UTC().Truncate(24 * time.Hour).Format("2006-01-02")
	}

	raw := strings.Join([]string{c.UserID, language, domain, filters, window}, "|")
	return hashHex(raw, contextHexLen)
}

func hashHex(raw string, hexLen int) string {
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)[:hexLen]
}
