package audit

// Config holds configuration for the audit recorder.
type Config struct {
	// Enabled toggles audit recording.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output is the JSON-lines destination: "stdout", "stderr" or a file
	// path. Ignored when a custom sink is injected.
	Output string `yaml:"output" json:"output"`

	// BufferSize is the capacity of the in-flight event buffer. When the
	// buffer is full, new events are dropped and counted rather than
	// blocking the request path.
	BufferSize int `yaml:"bufferSize" json:"bufferSize"`

	// RedactFields are metadata keys (substring match, case-insensitive)
	// whose values are replaced before persisting.
	RedactFields []string `yaml:"redactFields,omitempty" json:"redactFields,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		Output:     "stdout",
		BufferSize: 1024,
		RedactFields: []string{
			"password", "token", "secret", "authorization", "cookie", "apikey",
		},
	}
}

// normalize fills zero values with defaults.
func (c *Config) normalize() {
	if c.Output == "" {
		c.Output = "stdout"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
}
