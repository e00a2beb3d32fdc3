package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	_ "github.com/velora-crm/velora-pos/internal/testing/guard"
)

var once sync.Once

// ensureTestMode fills in ledger connection defaults so config loading never
// reaches for a real backend; the guard import above flags test mode itself.
func ensureTestMode() {
	once.Do(func() {
		if os.Getenv("LEDGER_BASE_URL") == "" {
			_ = os.Setenv("LEDGER_BASE_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("LEDGER_TOKEN") == "" {
			_ = os.Setenv("LEDGER_TOKEN", "test-token")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
