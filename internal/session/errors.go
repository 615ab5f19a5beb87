// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "github.com/pkg/errors"

// Rejections returned by SendToAgent and RetryLastMessage. A rejected call
// changes nothing.
var (
	ErrEmptyMessage        = errors.New("message is empty")
	ErrSubmissionInFlight  = errors.New("a message is already being answered")
	ErrDuplicateSubmission = errors.New("message is already being answered")
	ErrModelBusy           = errors.New("model is loading, unloading, or busy")
	ErrRateLimited         = errors.New("rate limited; wait for the cooldown")
	ErrNothingToRetry      = errors.New("no message to retry")
)

// IsRejection reports whether err is one of the submission guards.
func IsRejection(err error) bool {
	switch errors.Cause(err) {
	case ErrEmptyMessage, ErrSubmissionInFlight, ErrDuplicateSubmission,
		ErrModelBusy, ErrRateLimited, ErrNothingToRetry:
		return true
	}
	return false
}
