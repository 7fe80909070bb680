package application

import (
	"context"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----

// HunterIface is the part of the purchase loop the transports may observe.
type HunterIface interface {
	Running() bool
	Resume(ctx context.Context) bool
}
