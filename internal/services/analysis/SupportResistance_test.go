package analysis

import (
	"testing"

	"DerivTradeBot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// touchingCandles returns candles whose highs hit `high` and lows hit `low`
// exactly `touches` times each
func touchingCandles(high, low float64, touches int) []models.Candle {
	candles := make([]models.Candle, touches)
	for i := range candles {
		candles[i] = models.Candle{Open: low, High: high, Low: low, Close: high}
	}
	return candles
}

func TestDetectLevels(t *testing.T) {
	// 4 touches at 105.00 (resistance) and 95.00 (support)
	candles := touchingCandles(105.0, 95.0, 4)

	levels := DetectLevels(candles, 100.0)

	require.Len(t, levels.Support, 1)
	require.Len(t, levels.Resistance, 1)
	assert.Equal(t, 95.0, levels.Support[0].Price)
	assert.Equal(t, 2.0, levels.Support[0].Strength) // 4 touches / 2
	assert.Equal(t, 105.0, levels.Resistance[0].Price)
}

func TestDetectLevelsMinTouches(t *testing.T) {
	// 2 touches per price: below the threshold, no levels
	levels := DetectLevels(touchingCandles(105.0, 95.0, 2), 100.0)

	assert.Empty(t, levels.Support)
	assert.Empty(t, levels.Resistance)
}

func TestDetectLevelsStrengthCap(t *testing.T) {
	// 20 touches would give strength 10 uncapped
	levels := DetectLevels(touchingCandles(105.0, 95.0, 20), 100.0)

	require.Len(t, levels.Support, 1)
	assert.Equal(t, 5.0, levels.Support[0].Strength)
}

func TestDetectLevelsSorted(t *testing.T) {
	var candles []models.Candle
	candles = append(candles, touchingCandles(120.0, 80.0, 3)...)
	candles = append(candles, touchingCandles(110.0, 90.0, 3)...)

	levels := DetectLevels(candles, 100.0)

	require.Len(t, levels.Support, 2)
	require.Len(t, levels.Resistance, 2)
	assert.Equal(t, 80.0, levels.Support[0].Price)
	assert.Equal(t, 90.0, levels.Support[1].Price)
	assert.Equal(t, 110.0, levels.Resistance[0].Price)
	assert.Equal(t, 120.0, levels.Resistance[1].Price)
}

func TestDetectLevelsDeterministic(t *testing.T) {
	var candles []models.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, touchingCandles(101.0+float64(i%3), 95.0, 1)...)
	}

	first := DetectLevels(candles, 100.0)
	second := DetectLevels(candles, 100.0)

	assert.Equal(t, first, second)
}

func TestClusterLevels(t *testing.T) {
	// 100.0 and 100.2 are within 0.5%, 110 is not
	clusters := ClusterLevels([]float64{100.0, 100.2, 110.0}, 0.005)

	assert.Equal(t, []float64{100.1, 110.0}, clusters)
	assert.Nil(t, ClusterLevels(nil, 0.005))
}

func TestNearestBonus(t *testing.T) {
	tests := []struct {
		name     string
		level    models.SRLevel
		price    float64
		expected float64
	}{
		{"inside half percent", models.SRLevel{Price: 99.8, Strength: 3}, 100, 2.0}, // weight 1.0 x capped 2
		{"inside one percent", models.SRLevel{Price: 99.2, Strength: 2}, 100, 1.6},  // 0.8 x 2
		{"inside two percent", models.SRLevel{Price: 98.5, Strength: 1}, 100, 0.5},  // 0.5 x 1
		{"too far", models.SRLevel{Price: 90, Strength: 5}, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NearestBonus([]models.SRLevel{tt.level}, tt.price)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestNearestBonusPicksStrongest(t *testing.T) {
	levels := []models.SRLevel{
		{Price: 99.9, Strength: 1}, // bonus 1.0
		{Price: 99.3, Strength: 2}, // bonus 1.6
	}
	assert.InDelta(t, 1.6, NearestBonus(levels, 100), 1e-9)
}

func TestIsChoppy(t *testing.T) {
	strong := models.SRLevels{
		Support:    []models.SRLevel{{Price: 99.0, Strength: 3}},
		Resistance: []models.SRLevel{{Price: 101.0, Strength: 4}},
	}
	assert.True(t, IsChoppy(strong, 100))

	weakSupport := models.SRLevels{
		Support:    []models.SRLevel{{Price: 99.0, Strength: 2}},
		Resistance: []models.SRLevel{{Price: 101.0, Strength: 4}},
	}
	assert.False(t, IsChoppy(weakSupport, 100))

	farApart := models.SRLevels{
		Support:    []models.SRLevel{{Price: 90.0, Strength: 5}},
		Resistance: []models.SRLevel{{Price: 110.0, Strength: 5}},
	}
	assert.False(t, IsChoppy(farApart, 100))
}
