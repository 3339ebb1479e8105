package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secgate-io/secgate/internal/util"
)

func TestValidateAddress(t *testing.T) {
	t.Run("accepts routable addresses", func(t *testing.T) {
		tests := []struct {
			input string
			want  string
		}{
			{"192.0.2.1", "192.0.2.1"},
			{"203.0.113.255", "203.0.113.255"},
			{"8.8.8.8", "8.8.8.8"},
			{"2001:db8::1", "2001:db8::1"},
			{"::ffff:192.0.2.1", "192.0.2.1"},
			{"  192.0.2.1  ", "192.0.2.1"},
			{"255.255.255.255", "255.255.255.255"},
		}

		for _, tt := range tests {
			got, err := ValidateAddress(tt.input)
			require.NoError(t, err, tt.input)
			assert.Equal(t, tt.want, got)
		}
	})

	t.Run("rejects invalid and non-routable addresses", func(t *testing.T) {
		inputs := []string{
			"",
			"not-an-ip",
			"192.0.2",         // incomplete
			"192.0.2.1.5",     // too many octets
			"192.0.2.01",      // leading zero
			"256.1.1.1",       // octet out of range
			"127.0.0.1",       // loopback
			"::1",             // loopback v6
			"0.0.0.0",         // unspecified
			"0.255.0.1",       // 0.0.0.0/8
			"::",              // unspecified v6
			"169.254.10.10",   // link-local
			"fe80::1",         // link-local v6
			"224.0.0.1",       // multicast
			"ff02::1",         // multicast v6
			"240.0.0.1",       // reserved
			"250.250.250.250", // reserved
		}

		for _, input := range inputs {
			_, err := ValidateAddress(input)
			require.Error(t, err, input)
			assert.ErrorIs(t, err, util.ErrInvalidAddress, input)
		}
	})
}
