package ports

import (
	"context"

	"cognosis/domain/beacon"
)

// BeaconClient fetches public randomness rounds. Implementations that fall
// back to local entropy must mark the result SourceLocalFallback so
// downstream auditability checks can reject it.
type BeaconClient interface {
	Latest(ctx context.Context) (beacon.Beacon, error)
	Round(ctx context.Context, round uint64) (beacon.Beacon, error)
}
