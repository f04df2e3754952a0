package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-reconciler/internal/types"
)

func TestRank(t *testing.T) {
	r := NewResolver([]string{"coingecko", "CoinMarketCap", "dextools", " dexscreener ", "birdeye", "coingecko"})

	assert.Equal(t, []string{"coingecko", "coinmarketcap", "dextools", "dexscreener", "birdeye"}, r.Order())
	assert.Equal(t, 0, r.Rank("coingecko"))
	assert.Equal(t, 1, r.Rank("COINMARKETCAP"))
	assert.Equal(t, 3, r.Rank("dexscreener"))
	assert.Equal(t, 5, r.Rank("gmgn"))
	assert.Equal(t, 5, r.Rank(""))
}

func TestHighestPriority(t *testing.T) {
	r := NewResolver(types.DefaultSourcePriority)

	best, ok := r.HighestPriority([]string{"birdeye", "coingecko", "dextools"})
	require.True(t, ok)
	assert.Equal(t, "coingecko", best)

	_, ok = r.HighestPriority(nil)
	assert.False(t, ok)

	best, ok = r.HighestPriority([]string{"zeta", "alpha"})
	require.True(t, ok)
	assert.Equal(t, "alpha", best)
}

func TestPreferIncoming(t *testing.T) {
	r := NewResolver([]string{"coingecko", "coinmarketcap", "dextools", "dexscreener", "birdeye"})

	tests := []struct {
		name     string
		existing []string
		incoming string
		want     bool
	}{
		{"higher authority wins", []string{"dextools"}, "coingecko", true},
		{"lower authority loses", []string{"coinmarketcap"}, "birdeye", false},
		{"tie favours incoming", []string{"dextools"}, "dextools", true},
		{"best existing source decides", []string{"birdeye", "coingecko"}, "dextools", false},
		{"no sources yet", nil, "birdeye", true},
		{"unknown incoming ranks last", []string{"birdeye"}, "gmgn", false},
		{"unknown on both sides tie", []string{"gmgn"}, "telegram", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.PreferIncoming(tt.existing, tt.incoming))
		})
	}
}
