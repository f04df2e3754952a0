package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-reconciler/internal/types"
)

func TestEngineMerge_ProtectedKeys(t *testing.T) {
	e := NewEngine()
	existing := types.Document{
		types.FieldProjectUID:    "abc-123",
		types.FieldProjectName:   "Digital Gold",
		types.FieldProjectTicker: "GOLD",
		types.FieldCreatedAt:     "",
	}
	incoming := types.Document{
		types.FieldProjectUID:    "xyz-999",
		types.FieldProjectName:   "DIGITAL GOLD",
		types.FieldProjectTicker: "GLD",
		types.FieldCreatedAt:     "2024-05-01 10:00:00",
	}

	for _, prefer := range []bool{true, false} {
		merged := e.Merge(existing, incoming, prefer)

		assert.Equal(t, "abc-123", merged[types.FieldProjectUID])
		assert.Equal(t, "Digital Gold", merged[types.FieldProjectName])
		assert.Equal(t, "GOLD", merged[types.FieldProjectTicker])
		assert.Equal(t, "2024-05-01 10:00:00", merged[types.FieldCreatedAt])
	}
}

func TestEngineMerge_ProtectedKeyNotRecursed(t *testing.T) {
	e := NewEngine(WithProtectedKeys("meta"))
	existing := types.Document{"meta": map[string]any{"a": 1.0}}
	incoming := types.Document{"meta": map[string]any{"b": 2.0}}

	merged := e.Merge(existing, incoming, true)

	assert.Equal(t, map[string]any{"a": 1.0}, merged["meta"])
}

func TestEngineMerge_SourcePreferenceOnScalars(t *testing.T) {
	e := NewEngine()
	existing := types.Document{types.FieldMarketCap: 1000.0, types.FieldAbout: "old"}
	incoming := types.Document{types.FieldMarketCap: 2500.0, types.FieldAbout: ""}

	preferred := e.Merge(existing, incoming, true)
	assert.Equal(t, 2500.0, preferred[types.FieldMarketCap])
	assert.Equal(t, "old", preferred[types.FieldAbout])

	notPreferred := e.Merge(existing, incoming, false)
	assert.Equal(t, 1000.0, notPreferred[types.FieldMarketCap])
}

func TestEngineMerge_DispatchesByFieldKind(t *testing.T) {
	e := NewEngine()
	existing := types.Document{
		types.FieldCategory:       []any{"Memes"},
		types.FieldNetwork:        "Ethereum",
		types.FieldSocials:        map[string]any{"website": "https://dg.io"},
		types.FieldTelegramAdmins: []any{map[string]any{"username": "alice", "status": "admin"}},
	}
	incoming := types.Document{
		types.FieldCategory:       []any{"memes", "DeFi"},
		types.FieldNetwork:        []any{"ethereum", "Base"},
		types.FieldSocials:        map[string]any{"website": []any{"https://DG.io/"}},
		types.FieldTelegramAdmins: []any{map[string]any{"username": "ALICE", "status": "owner", "role_title": "Lead"}},
	}

	merged := e.Merge(existing, incoming, true)

	assert.Equal(t, []any{"Memes", "DeFi"}, merged[types.FieldCategory])
	assert.Equal(t, []any{"Ethereum", "Base"}, merged[types.FieldNetwork])
	assert.Equal(t, map[string]any{"website": []any{"https://dg.io"}}, merged[types.FieldSocials])
	admins := merged[types.FieldTelegramAdmins].([]any)
	require.Len(t, admins, 1)
	assert.Equal(t, "owner", admins[0].(map[string]any)["status"])
	assert.Equal(t, "Lead", admins[0].(map[string]any)["role_title"])
}

func TestEngineMerge_NestedObjects(t *testing.T) {
	e := NewEngine()
	existing := types.Document{
		"contracts": map[string]any{
			"ethereum": "0xabc",
			"tags":     []any{"erc20"},
			"deep":     map[string]any{"x": "1"},
		},
	}
	incoming := types.Document{
		"contracts": map[string]any{
			"ethereum": "",
			"solana":   "So1",
			"tags":     []any{"ERC20", "bridged"},
			"deep":     map[string]any{"y": "2"},
		},
	}

	merged := e.Merge(existing, incoming, true)

	assert.Equal(t, map[string]any{
		"ethereum": "0xabc",
		"solana":   "So1",
		"tags":     []any{"erc20", "bridged"},
		"deep":     map[string]any{"x": "1", "y": "2"},
	}, merged["contracts"])
}

func TestEngineMerge_TypeMismatchFallsBackToPrefer(t *testing.T) {
	e := NewEngine()
	existing := types.Document{"extra": map[string]any{"a": "b"}}
	incoming := types.Document{"extra": "flat"}

	assert.Equal(t, "flat", e.Merge(existing, incoming, true)["extra"])
	assert.Equal(t, map[string]any{"a": "b"}, e.Merge(existing, incoming, false)["extra"])
}

func TestEngineMerge_IgnoresIncomingSources(t *testing.T) {
	e := NewEngine()
	existing := types.Document{types.FieldSources: map[string]any{"coingecko": "x"}}
	incoming := types.Document{types.FieldSources: map[string]any{"birdeye": "y"}}

	merged := e.Merge(existing, incoming, true)

	assert.Equal(t, map[string]any{"coingecko": "x"}, merged[types.FieldSources])
}

func TestEngineMerge_KeysOnlyOnOneSide(t *testing.T) {
	e := NewEngine()
	existing := types.Document{"kept": "yes"}
	incoming := types.Document{"added": "new", "nothing": nil}

	merged := e.Merge(existing, incoming, false)

	assert.Equal(t, "yes", merged["kept"])
	assert.Equal(t, "new", merged["added"])
	assert.NotContains(t, merged, "nothing")
}

func TestEngineMerge_DoesNotMutateInputs(t *testing.T) {
	e := NewEngine()
	existing := types.Document{types.FieldCategory: []any{"Memes"}}
	incoming := types.Document{types.FieldCategory: []any{"DeFi"}}

	merged := e.Merge(existing, incoming, true)
	merged[types.FieldCategory] = append(merged[types.FieldCategory].([]any), "AI")

	assert.Equal(t, []any{"Memes"}, existing[types.FieldCategory])
	assert.Equal(t, []any{"DeFi"}, incoming[types.FieldCategory])
}

func TestEngine_CustomFieldKind(t *testing.T) {
	e := NewEngine(WithFieldKind("audits", types.KindList))
	kind, ok := e.KindOf("audits")
	require.True(t, ok)
	assert.Equal(t, types.KindList, kind)

	merged := e.Merge(types.Document{"audits": "CertiK"}, types.Document{"audits": "Hacken"}, true)
	assert.Equal(t, []any{"Hacken", "CertiK"}, merged["audits"])
}

func TestEngine_CustomStrategy(t *testing.T) {
	last := func(_, b any, _ bool) any { return b }
	e := NewEngine(WithStrategy(types.KindList, last))

	merged := e.Merge(types.Document{types.FieldCategory: []any{"a"}}, types.Document{types.FieldCategory: []any{"b"}}, false)
	assert.Equal(t, []any{"b"}, merged[types.FieldCategory])
}
