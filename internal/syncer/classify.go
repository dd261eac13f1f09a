package syncer

import (
	"context"
	"errors"

	"github.com/kthezelais/budget-tracker/internal/cache"
	"github.com/kthezelais/budget-tracker/internal/domain"
)

// ErrorKind is how the presentation layer should treat a failure
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindRemoteUnavailable
	KindCacheUnavailable
	KindValidation
	KindStaleWriteIgnored
	KindRolloverLocked
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindRemoteUnavailable:
		return "remote_unavailable"
	case KindCacheUnavailable:
		return "cache_unavailable"
	case KindValidation:
		return "validation"
	case KindStaleWriteIgnored:
		return "stale_write_ignored"
	case KindRolloverLocked:
		return "rollover_locked"
	default:
		return "unknown"
	}
}

// Classify maps err onto the failure taxonomy
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, domain.ErrNoChange):
		return KindStaleWriteIgnored
	case errors.Is(err, domain.ErrRolloverLocked):
		return KindRolloverLocked
	case errors.Is(err, domain.ErrCacheUnavailable), errors.Is(err, cache.ErrMiss):
		return KindCacheUnavailable
	case errors.Is(err, domain.ErrInvalidInput):
		return KindValidation
	case errors.Is(err, domain.ErrNotFound):
		return KindNotFound
	case errors.Is(err, domain.ErrRemoteUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindRemoteUnavailable
	default:
		return KindUnknown
	}
}
