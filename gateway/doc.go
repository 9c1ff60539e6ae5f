// Package gateway exposes the assistant over HTTP. A chat request is answered
// with a stream of server-sent events, one JSON encoded core.Event per
// record, ending with a complete or error event.
package gateway
