package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("VELORA_TEST_MODE") == "" {
			_ = os.Setenv("VELORA_TEST_MODE", "1")
		}
	})
}
