// Package handler adapts the transport independent dispatcher to net/http. A
// Pipeline defines how HTTP requests are converted to dispatch requests, and
// how dispatch results are serialized and written, so that the path based and
// query based entry points share the same processing stages.
package handler
