// Package testing switches the process into test mode when imported, so that
// binaries and handlers skip connecting to Postgres, Redis and the worker queue.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("APPMATO_TEST_MODE", "1")
		if os.Getenv("TZ_NAME") == "" {
			_ = os.Setenv("TZ_NAME", "Europe/Paris")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs the suite with test mode enabled.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
