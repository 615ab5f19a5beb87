// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline tracks whether the chat backend is reachable.
//
// Connection failures are not chat messages: the session controller flips
// a Monitor to offline instead, and the presentation layer shows the
// status. The next successful exchange flips it back.
//
// # Key Types
//
//   - Monitor: Online/offline state with change notification
//   - Status: Connection status enumeration
//
// # Usage
//
//	mon := offline.NewMonitor()
//	mon.SetOffline("dial tcp 127.0.0.1:8787: connection refused")
//	fmt.Println(mon.Status(), mon.Reason())
package offline
