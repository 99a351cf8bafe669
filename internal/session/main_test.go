//go:build !integration

package session

import (
	"testing"

	"go.uber.org/goleak"
)

// Leak verification only applies to the pure unit tests; testcontainers
// keeps background goroutines alive for the integration build.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
