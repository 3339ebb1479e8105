package threatscan

// DefaultSignatures returns the built-in signature list. Order matters only
// for signal ordering; every signature is always evaluated.
func DefaultSignatures() []Signature {
	return []Signature{
		// SQL keywords combined with a quote, statement separator or
		// comment sequence. The keyword alone is not enough: prose like
		// "select a plan" must not match.
		NewSignature("sqli-keyword", KindSQLInjection,
			`(?i)\b(select|insert|update|delete|drop|union|alter|create|truncate|exec)\b[^\n]*('|"|;|--|/\*)`),
		NewSignature("sqli-comment", KindSQLInjection,
			`(--|#|/\*)\s*$|--\s`),
		NewSignature("sqli-tautology", KindSQLInjection,
			`(?i)('|")\s*(or|and)\s*('|")?\s*\d*\s*('|")?\s*=`),

		NewSignature("xss-script-tag", KindXSS,
			`(?i)<\s*script`),
		NewSignature("xss-javascript-uri", KindXSS,
			`(?i)javascript\s*:`),
		NewSignature("xss-event-handler", KindXSS,
			`(?i)\bon(abort|blur|click|dblclick|error|focus|input|keydown|keypress|keyup|load|mousedown|mousemove|mouseout|mouseover|mouseup|reset|resize|scroll|select|submit|unload)\s*=`),
		NewSignature("xss-embed-tag", KindXSS,
			`(?i)<\s*(iframe|object|embed)`),

		NewSignature("path-traversal", KindPathTraversal,
			`\.\./|\.\.\\`),
	}
}
