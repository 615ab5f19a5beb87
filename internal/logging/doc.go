// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger shared by every component.
//
// Output goes to stderr as human-readable console lines or JSON. When a
// log file is configured, output goes to that file instead and is rotated
// by size.
//
//	logger, closer, err := logging.Setup(cfg.Logging)
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
package logging
