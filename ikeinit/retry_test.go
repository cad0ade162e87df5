package ikeinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryControllerCapsAtMaxRetries(t *testing.T) {
	var r RetryController
	for i := 0; i < MaxRetries; i++ {
		assert.True(t, r.Allow(), "attempt %d should be within budget", i)
	}
	assert.False(t, r.Allow(), "attempt past MaxRetries must be refused")
}

func TestRetryControllerDuplicateCookieDetected(t *testing.T) {
	var r RetryController
	cookie := []byte{0xaa, 0xbb, 0xcc}

	assert.False(t, r.ObserveCookie(cookie), "first cookie is never a duplicate")
	assert.True(t, r.ObserveCookie(cookie), "identical second cookie must be reported as duplicate")
}

func TestRetryControllerDifferentCookieNotDuplicate(t *testing.T) {
	var r RetryController
	assert.False(t, r.ObserveCookie([]byte{0x01}))
	assert.False(t, r.ObserveCookie([]byte{0x02}), "a different cookie value is a fresh challenge, not a duplicate")
}
