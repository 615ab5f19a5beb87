// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package clock abstracts wall-clock time and delayed callbacks.
//
// Every timer in the session core (indicator debounce, minimum visible
// time, fallback budget, cooldown ticks, status polling) is scheduled
// through a Clock so tests can drive time by hand with Mock.
//
// # Usage
//
//	clk := clock.NewMock(time.Unix(0, 0))
//	clk.AfterFunc(300*time.Millisecond, func() { fmt.Println("fired") })
//	clk.Advance(300 * time.Millisecond) // prints "fired"
package clock
