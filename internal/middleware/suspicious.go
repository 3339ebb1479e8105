package middleware

import (
	"net/http"
	"strings"
)

// defaultScannerAgents are substrings of User-Agent values sent by common
// reconnaissance tools. Matching is case-insensitive.
var defaultScannerAgents = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"dirbuster",
	"gobuster",
	"wpscan",
}

// defaultProbePaths are path prefixes commonly requested by automated
// probes looking for exposed files and admin panels.
var defaultProbePaths = []string{
	"/.env",
	"/.git",
	"/wp-admin",
	"/wp-login",
	"/phpmyadmin",
	"/config.php",
	"/admin.php",
}

// SuspicionDetector flags requests that look like automated reconnaissance.
// Detection is advisory: flagged requests are audited but never blocked.
type SuspicionDetector struct {
	scannerAgents []string
	probePaths    []string
}

// SuspicionOption is a functional option for the detector.
type SuspicionOption func(*SuspicionDetector)

// WithScannerAgents replaces the scanner User-Agent substrings.
func WithScannerAgents(agents []string) SuspicionOption {
	return func(d *SuspicionDetector) {
		d.scannerAgents = agents
	}
}

// WithProbePaths replaces the probed path prefixes.
func WithProbePaths(paths []string) SuspicionOption {
	return func(d *SuspicionDetector) {
		d.probePaths = paths
	}
}

// NewSuspicionDetector creates a detector with the default heuristics.
func NewSuspicionDetector(opts ...SuspicionOption) *SuspicionDetector {
	d := &SuspicionDetector{
		scannerAgents: defaultScannerAgents,
		probePaths:    defaultProbePaths,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns a reason string when the request matches a heuristic, and
// an empty string otherwise.
func (d *SuspicionDetector) Detect(r *http.Request) string {
	ua := strings.ToLower(r.UserAgent())
	if ua == "" {
		// Browsers and well-behaved clients always identify themselves.
		// A state-changing request without a User-Agent is worth a look.
		if _, safe := safeMethods[r.Method]; !safe {
			return "missing user agent on state-changing request"
		}
	}
	for _, agent := range d.scannerAgents {
		if strings.Contains(ua, agent) {
			return "scanner user agent: " + agent
		}
	}

	path := strings.ToLower(r.URL.Path)
	for _, probe := range d.probePaths {
		if strings.HasPrefix(path, probe) {
			return "probe path: " + probe
		}
	}

	return ""
}
