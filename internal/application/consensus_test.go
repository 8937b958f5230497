package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2 -> 1224 -> 543 -> 561 -> {562, 564}; 2 -> 1239 -> 1386
func bacteriaTaxa() *memTaxa {
	return newMemTaxa(map[int]int{
		2:    1,
		1224: 2,
		543:  1224,
		561:  543,
		562:  561,
		564:  561,
		1239: 2,
		1386: 1239,
	})
}

func TestConsensusSingleTaxonIsTrivial(t *testing.T) {
	engine := NewConsensusEngine(newMemTaxa(nil), nil)

	got, ok, err := engine.Resolve(context.Background(), map[int]int{562: 5})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 562, got)
}

func TestConsensusSiblingsResolveToParent(t *testing.T) {
	engine := NewConsensusEngine(bacteriaTaxa(), nil)

	got, ok, err := engine.Resolve(context.Background(), map[int]int{562: 1, 564: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 561, got)
}

func TestConsensusWeightsFavourFrequentTaxon(t *testing.T) {
	engine := NewConsensusEngine(bacteriaTaxa(), nil)

	got, ok, err := engine.Resolve(context.Background(), map[int]int{562: 3, 1386: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 562, got)
}

func TestConsensusDistantTieStopsAtCommonRank(t *testing.T) {
	engine := NewConsensusEngine(bacteriaTaxa(), nil)

	got, ok, err := engine.Resolve(context.Background(), map[int]int{562: 1, 1386: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestConsensusIgnoresUnknownTaxa(t *testing.T) {
	engine := NewConsensusEngine(bacteriaTaxa(), nil)

	got, ok, err := engine.Resolve(context.Background(), map[int]int{562: 1, 999999: 4})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 562, got)

	_, ok, err = engine.Resolve(context.Background(), map[int]int{888888: 1, 999999: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsensusDistrustThresholdIsTunable(t *testing.T) {
	parents := map[int]int{10: 1, 20: 10, 30: 20, 40: 30}
	taxa := newMemTaxa(parents)

	strict := NewConsensusEngine(taxa, nil)
	got, ok, err := strict.Resolve(context.Background(), map[int]int{30: 9, 40: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30, got)

	lenient := strict.WithDistrustAbove(100)
	got, ok, err = lenient.Resolve(context.Background(), map[int]int{30: 9, 40: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 40, got)
}
