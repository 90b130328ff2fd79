package cancelops

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewOperationID returns a UUIDv7 suitable for uniquely identifying an
// [Operation] within this process.
//
// UUIDv7 is time-ordered, so operation IDs sort (roughly) in creation order,
// which is convenient when correlating logs or registry history by eye.
//
// This function panics if the system random number generator fails, which
// should only happen under extraordinary circumstances.
func NewOperationID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
