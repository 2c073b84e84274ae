/*
Package kafka provides a Kafka transport for the event provider built on franz-go.

Exchanges map to topics and routing keys to record keys. A queue is a consumer group:
subscribing starts a group consumer on every topic the queue is bound to, and records
whose key does not match a binding pattern are skipped client side. Topic deletion is
an administrative operation and is not performed on Destroy.
*/
package kafka
