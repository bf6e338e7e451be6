// Package guard switches the binaries into test mode when imported by a test,
// so running main never reaches for the shop, Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

// Env is the variable read by app.InTestMode.
const Env = "SHOPSYNC_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
