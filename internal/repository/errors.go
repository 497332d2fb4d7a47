package repository

import "errors"

// ErrStaleStatus reports that a ticket's status no longer matches the
// status the caller expected to transition from.
var ErrStaleStatus = errors.New("repository: ticket status changed concurrently")
