/*
Package nats provides a NATS transport for the event provider.

Exchanges become subject prefixes: publishing with routing key "orders" on exchange
"events" sends to "events.orders". Queues become queue groups, so each message reaches
one member of the group. AMQP topic patterns are translated to NATS wildcards ("#" to
">" and "*" stays "*"); a "#" that is not the last token has no NATS equivalent and is
rejected. NATS has no broker-side declarations, so exchanges and queues exist only as
client-side handles.
*/
package nats
