package ikeinit

// MaxRetries bounds how many times the initiator will rebuild and resend
// IKE_SA_INIT in response to a COOKIE or INVALID_KE_PAYLOAD notify before
// giving up (RFC 7296 doesn't mandate a number; strongSwan's ike_init.c
// picks a small fixed cap to stop a hostile responder from stalling the
// initiator forever).
const MaxRetries = 5

// RetryController tracks the initiator's cookie/KE-retry budget across one
// IKE_SA_INIT run.
type RetryController struct {
	count        int
	cookieSeen   bool
	cookieEchoed []byte
}

// Allow records one retry attempt and reports whether the budget allows it.
func (r *RetryController) Allow() bool {
	if r.count >= MaxRetries {
		return false
	}
	r.count++
	return true
}

// ObserveCookie records a COOKIE notify from the responder. A second COOKIE
// notify carrying the identical value the initiator already echoed back is
// not a fresh retry opportunity — it means the responder is stuck replaying
// its own challenge — and must fail the exchange rather than loop.
func (r *RetryController) ObserveCookie(cookie []byte) (duplicate bool) {
	if r.cookieSeen && bytesEqual(r.cookieEchoed, cookie) {
		return true
	}
	r.cookieSeen = true
	r.cookieEchoed = append([]byte{}, cookie...)
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
