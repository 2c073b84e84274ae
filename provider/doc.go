/*
Package provider is an event-emitting façade over a message broker.

A Provider validates its configuration synchronously, then opens a connection in the
background, declares the exchange and the queue, binds the queue to the exchange with
the catch-all pattern and becomes ready. Publish and Subscribe calls issued before that
are queued and replayed in call order; once ready they run on the caller's goroutine.
Inbound deliveries are decoded and emitted as "message" events on the Sink.
*/
package provider
