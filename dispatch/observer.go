package dispatch

import "time"

// Observer receives dispatch outcomes, e.g. for metrics collection.
type Observer interface {
	// ObserveDispatch is called once per dispatched request. route is the
	// matched binding pattern, or empty if no binding matched.
	ObserveDispatch(route string, handler string, statusCode int, duration time.Duration)
	// ObserveAuthentication is called once per presented credential that
	// reached an authentication handler.
	ObserveAuthentication(success bool)
}

type nopObserver struct{}

func (nopObserver) ObserveDispatch(string, string, int, time.Duration) {}
func (nopObserver) ObserveAuthentication(bool)                         {}
