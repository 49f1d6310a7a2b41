// Package transport carries domain events between the mutation side and
// the automation processor over MQTT.
//
// Events are published as JSON to <prefix>/user/action/{type}. The
// Subscriber listens on <prefix>/user/action/+, hands each payload from the
// broker callback to a buffered channel, and runs a single consumer loop
// that decodes events and calls the handler. Malformed payloads are logged
// and dropped; handler panics are recovered.
package transport
