// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit provides the post-response cooldown countdown.
//
// After a non-cached answer from a remote provider the session controller
// starts a Timer; while it is active new submissions are rejected. The
// local provider never enters cooldown.
package ratelimit
