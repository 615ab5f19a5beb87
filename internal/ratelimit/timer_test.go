// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-stream/internal/clock"
	"github.com/jeranaias/rigrun-stream/internal/model"
)

func remote() model.Selection { return model.Selection{ProviderID: model.ProviderBuiltin, ModelID: "auto"} }
func local() model.Selection  { return model.Selection{ProviderID: model.ProviderLocal, ModelID: "qwen"} }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60*time.Second, cfg.Cooldown)
	assert.Equal(t, time.Second, cfg.Tick)
}

func TestTimer_CountsDownAndClears(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	timer := New(DefaultConfig(), clk, remote)

	assert.Equal(t, State{}, timer.State())
	timer.Start()
	assert.Equal(t, State{Active: true, RemainingSeconds: 60}, timer.State())

	clk.Advance(time.Second)
	assert.Equal(t, 59, timer.State().RemainingSeconds)

	clk.Advance(58 * time.Second)
	st := timer.State()
	assert.True(t, st.Active)
	assert.Equal(t, 1, st.RemainingSeconds)

	clk.Advance(time.Second)
	assert.Equal(t, State{Active: false, RemainingSeconds: 0}, timer.State())
	assert.Equal(t, 0, clk.Pending(), "no tick scheduled after clearing")
}

func TestTimer_RemainingImpliesActive(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	timer := New(Config{Cooldown: 5 * time.Second}, clk, remote)
	timer.Start()
	for i := 0; i < 7; i++ {
		st := timer.State()
		if st.RemainingSeconds > 0 {
			require.True(t, st.Active, "remaining %d must imply active", st.RemainingSeconds)
		}
		clk.Advance(time.Second)
	}
	assert.False(t, timer.Active())
}

func TestTimer_LocalProviderSuppressesStart(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	timer := New(DefaultConfig(), clk, local)
	timer.Start()
	assert.False(t, timer.Active())
	assert.Equal(t, 0, clk.Pending())
}

func TestTimer_SelectionReadFreshOnStart(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	sel := local()
	timer := New(DefaultConfig(), clk, func() model.Selection { return sel })

	timer.Start()
	assert.False(t, timer.Active())

	sel = remote()
	timer.Start()
	assert.True(t, timer.Active())
}

func TestTimer_RestartResetsCountdown(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	timer := New(DefaultConfig(), clk, remote)
	timer.Start()
	clk.Advance(30 * time.Second)
	timer.Start()
	assert.Equal(t, 60, timer.State().RemainingSeconds)
	assert.Equal(t, 1, clk.Pending(), "old tick chain cancelled")
}

func TestTimer_Reset(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	timer := New(DefaultConfig(), clk, remote)
	timer.Start()
	timer.Reset()
	assert.Equal(t, State{}, timer.State())
	clk.Advance(2 * time.Second)
	assert.Equal(t, State{}, timer.State())
}

func TestTimer_Changes(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	timer := New(DefaultConfig(), clk, remote)
	timer.Start()

	select {
	case <-timer.Changes():
	default:
		t.Fatal("expected change signal after start")
	}
	clk.Advance(time.Second)
	select {
	case <-timer.Changes():
	default:
		t.Fatal("expected change signal after tick")
	}
}

func TestTimer_StartForSkipsLookup(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	lookups := 0
	timer := New(DefaultConfig(), clk, func() model.Selection {
		lookups++
		return local()
	})

	timer.StartFor(remote())
	assert.True(t, timer.Active())
	assert.Equal(t, 0, lookups)

	timer.Reset()
	timer.StartFor(local())
	assert.False(t, timer.Active())
	assert.Equal(t, 0, lookups)
}
