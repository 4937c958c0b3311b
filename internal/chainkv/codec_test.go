package chainkv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTXOStateRoundTrip(t *testing.T) {
	cases := []TXOState{
		{LockerScriptHash: scriptN(1), Value: 0, GeneratedHeight: 0},
		{LockerScriptHash: scriptN(2), Value: 5_000_000_000, GeneratedHeight: 700000},
		{LockerScriptHash: scriptN(3), Value: 1, GeneratedHeight: 1, SpentHeight: 2, SpentHeightSet: true},
	}
	for _, c := range cases {
		got, err := decodeTXOState(encodeTXOState(c))
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestDecodeTXOStateRejectsMalformed(t *testing.T) {
	_, err := decodeTXOState([]byte{1, 2, 3})
	require.Error(t, err)
}
