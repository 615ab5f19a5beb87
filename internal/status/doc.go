// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package status tracks the load state of the selected provider/model.
//
// For the local provider the Tracker follows the backend's status event
// stream, switching to polling if the stream fails. Other providers have no
// status feed; the Tracker synthesizes an idle "ready" status on a fixed
// interval instead. A selection change restarts the appropriate mode.
//
// The Tracker also holds the transient "provider busy" notice raised when
// the local model rejects a request.
package status
