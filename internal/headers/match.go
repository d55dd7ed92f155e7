package headers

// MatchKind classifies how a header matched an alias.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchPartial
	MatchFull
	MatchPhrase
)

func (k MatchKind) String() string {
	switch k {
	case MatchPartial:
		return "partial"
	case MatchFull:
		return "full"
	case MatchPhrase:
		return "phrase"
	default:
		return "none"
	}
}

// Match is the outcome of normalizing one header.
type Match struct {
	Field   string    // Canonical field; empty when unmapped
	Mapped  bool      // False when no alias scored high enough
	Alias   string    // The winning alias phrasing
	Kind    MatchKind // How the alias matched
	Overlap float64   // Share of alias tokens found in the header
	Tokens  []string  // Header tokens after cleaning, kept for diagnostics
}

// candidate is a scored alias.
type candidate struct {
	alias   *Alias
	kind    MatchKind
	matched int
	overlap float64
}

// better reports whether c outranks o.
func (c candidate) better(o candidate) bool {
	cFull, oFull := c.kind >= MatchFull, o.kind >= MatchFull
	if cFull != oFull {
		return cFull
	}
	if cFull {
		if c.matched != o.matched {
			return c.matched > o.matched
		}
		if c.kind != o.kind {
			return c.kind > o.kind
		}
	} else {
		if c.overlap != o.overlap {
			return c.overlap > o.overlap
		}
		if c.matched != o.matched {
			return c.matched > o.matched
		}
	}
	return c.alias.order < o.alias.order
}

// Normalize maps a raw header to its canonical field.
// An unmapped header is a normal outcome, never an error.
func (d *Dictionary) Normalize(header string) Match {
	tokens := tokenize(header, d.stopWords)
	m := Match{Tokens: tokens}
	if len(tokens) == 0 {
		return m
	}

	present := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		present[tok] = struct{}{}
	}

	var best *candidate
	for i := range d.aliases {
		a := &d.aliases[i]
		c, ok := d.score(a, tokens, present)
		if !ok {
			continue
		}
		if best == nil || c.better(*best) {
			cc := c
			best = &cc
		}
	}

	if best == nil {
		return m
	}

	m.Field = best.alias.Field
	m.Mapped = true
	m.Alias = best.alias.Phrase
	m.Kind = best.kind
	m.Overlap = best.overlap
	return m
}

// score rates one alias against the header tokens.
func (d *Dictionary) score(a *Alias, tokens []string, present map[string]struct{}) (candidate, bool) {
	matched := 0
	for tok := range a.set {
		if _, ok := present[tok]; ok {
			matched++
		}
	}
	if matched == 0 {
		return candidate{}, false
	}

	overlap := float64(matched) / float64(len(a.set))
	c := candidate{alias: a, matched: matched, overlap: overlap}

	switch {
	case matched == len(a.set) && containsPhrase(tokens, a.Tokens):
		c.kind = MatchPhrase
	case matched == len(a.set):
		c.kind = MatchFull
	case overlap >= d.threshold:
		c.kind = MatchPartial
	default:
		return candidate{}, false
	}
	return c, true
}

// containsPhrase reports whether phrase occurs contiguously in tokens.
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}
