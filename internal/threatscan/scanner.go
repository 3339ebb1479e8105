// Package threatscan pattern-matches request text for injection signatures.
//
// Detection is deliberately pattern-based rather than parsing-based: the
// known false-negative rate of regex matching is an accepted trade-off for
// simplicity and recall, documented here rather than "fixed" with a full
// parser. Signatures form a pluggable ordered list so heuristics can be
// added and tested independently.
package threatscan

import "regexp"

// Kind classifies a threat signal.
type Kind string

// Threat kinds.
const (
	KindSQLInjection  Kind = "sql_injection"
	KindXSS           Kind = "xss"
	KindPathTraversal Kind = "path_traversal"
)

// Signal is produced for each matching signature. It is ephemeral:
// consumed immediately by the gateway to decide block/allow and to
// populate audit metadata.
type Signal struct {
	// Kind is the threat classification.
	Kind Kind

	// Signature is the signature that matched.
	Signature Signature
}

// Signature is a named predicate over request text.
type Signature struct {
	// Name identifies the signature in signals and audit metadata.
	Name string

	// Kind is the threat classification of a match.
	Kind Kind

	pattern *regexp.Regexp
}

// NewSignature creates a signature from a regular expression. Panics on an
// invalid pattern; signatures are compiled at startup from literals.
func NewSignature(name string, kind Kind, pattern string) Signature {
	return Signature{
		Name:    name,
		Kind:    kind,
		pattern: regexp.MustCompile(pattern),
	}
}

// Match reports whether the signature matches the text.
func (s Signature) Match(text string) bool {
	return s.pattern.MatchString(text)
}

// Scanner matches text against an ordered signature list.
type Scanner struct {
	signatures []Signature
}

// NewScanner creates a scanner with the given signatures, defaulting to
// DefaultSignatures when none are given.
func NewScanner(signatures ...Signature) *Scanner {
	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	return &Scanner{signatures: signatures}
}

// Scan returns one signal per matching signature, in signature order. An
// empty result means no signature matched.
func (s *Scanner) Scan(text string) []Signal {
	if text == "" {
		return nil
	}

	var signals []Signal
	for _, sig := range s.signatures {
		if sig.Match(text) {
			signals = append(signals, Signal{Kind: sig.Kind, Signature: sig})
		}
	}
	return signals
}

// Signatures returns the scanner's signature list.
func (s *Scanner) Signatures() []Signature {
	return s.signatures
}
