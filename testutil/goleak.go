package testutil

import "go.uber.org/goleak"

// GoleakOptions is the common list of options to pass to goleak. Idle
// keep-alive connections of HTTP clients are torn down asynchronously after
// an httptest server closes.
var GoleakOptions = []goleak.Option{
	goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
}
