package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateEmptySnapshotYieldsDefaults(t *testing.T) {
	cfg, notes := Migrate(nil)
	assert.Equal(t, Default(), cfg)
	assert.Empty(t, notes)
}

func TestMigrateKeepsStoredValuesAndFillsMissing(t *testing.T) {
	cfg, _ := Migrate(json.RawMessage(`{"max_positions": 7, "take_profit_pct": 12.5}`))
	assert.Equal(t, 7, cfg.MaxPositions)
	assert.Equal(t, 12.5, cfg.TakeProfitPct)
	// Missing keys pick up defaults.
	assert.Equal(t, Default().StopLossPct, cfg.StopLossPct)
	assert.Equal(t, Default().DexMaxPositions, cfg.DexMaxPositions)
}

func TestMigrateNullFieldGetsDefault(t *testing.T) {
	cfg, _ := Migrate(json.RawMessage(`{"stop_loss_pct": null}`))
	assert.Equal(t, Default().StopLossPct, cfg.StopLossPct)
}

func TestMigrateIgnoresUnknownKeys(t *testing.T) {
	cfg, _ := Migrate(json.RawMessage(`{"long_gone_setting": 42}`))
	assert.Equal(t, Default(), cfg)
}

func TestMigrateLegacyDexKeysSeedTierKeys(t *testing.T) {
	cfg, notes := Migrate(json.RawMessage(`{"dex_min_liquidity": 42000}`))
	assert.Equal(t, 42000.0, cfg.DexEarlyMinLiquidity)
	assert.Equal(t, 42000.0, cfg.DexEstablishedMinLiquidity)
	assert.NotEmpty(t, notes)
}

func TestMigrateTierKeyWinsOverLegacy(t *testing.T) {
	cfg, _ := Migrate(json.RawMessage(`{"dex_min_liquidity": 42000, "dex_early_min_liquidity": 9000}`))
	assert.Equal(t, 9000.0, cfg.DexEarlyMinLiquidity)
	assert.Equal(t, 42000.0, cfg.DexEstablishedMinLiquidity)
}

func TestMigrateRepairsCorruptScalars(t *testing.T) {
	cfg, notes := Migrate(json.RawMessage(`{"tick_interval_ms": -5, "dex_slippage_model": "wild", "max_position_value": 0}`))
	assert.Equal(t, Default().TickIntervalMs, cfg.TickIntervalMs)
	assert.Equal(t, Default().DexSlippageModel, cfg.DexSlippageModel)
	assert.Equal(t, Default().MaxPositionValue, cfg.MaxPositionValue)
	assert.NotEmpty(t, notes)
}

func TestPatchShallowMerge(t *testing.T) {
	cfg := Default()
	next, _, err := Patch(cfg, json.RawMessage(`{"dex_enabled": true, "max_positions": 5}`))
	require.NoError(t, err)
	assert.True(t, next.DexEnabled)
	assert.Equal(t, 5, next.MaxPositions)
	assert.Equal(t, cfg.TakeProfitPct, next.TakeProfitPct)
}

func TestPatchRejectsMalformedBody(t *testing.T) {
	cfg := Default()
	_, _, err := Patch(cfg, json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestPatchIgnoresUnknownKeys(t *testing.T) {
	next, _, err := Patch(Default(), json.RawMessage(`{"nope": 1}`))
	require.NoError(t, err)
	assert.Equal(t, Default(), next)
}
