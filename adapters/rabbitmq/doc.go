/*
Package rabbitmq provides a RabbitMQ transport for the event provider.
It maps the broker contracts to AMQP 0-9-1: exchanges and queues are declared on a
single channel, the provider's catch-all binding becomes a topic binding with "#",
and connection close notifications are surfaced through NotifyError.
*/
package rabbitmq
