// Package testing switches the process into test mode when imported by a
// package's tests, so handlers skip runtime side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("POSADMIN_TEST_MODE", "1")
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("MAIL_DELIVERY") == "" {
			_ = os.Setenv("MAIL_DELIVERY", "sync")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain forces test mode before running m.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
