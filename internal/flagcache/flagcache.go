// Package flagcache exposes a tiny shared boolean-flag store. Scheduled jobs
// write flags; the health surface reads them without recomputation.
package flagcache

import "context"

// KeyPaypalTopupNeeded is the flag written by the top-up notification job.
const KeyPaypalTopupNeeded = "paypal:topup_needed"

// FlagCache stores named boolean flags. Get reports found=false when the
// flag has never been written.
type FlagCache interface {
	SetFlag(ctx context.Context, key string, value bool) error
	GetFlag(ctx context.Context, key string) (value bool, found bool, err error)
}
