package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/cascette-go/fingerprint"
)

func mustFP(t *testing.T, hex string) fingerprint.Fingerprint {
	t.Helper()
	for len(hex) < 32 {
		hex += "0"
	}
	fp, err := fingerprint.FromHex(hex)
	require.NoError(t, err)
	return fp
}
