/*
Package inmemory provides an in-process broker for tests and examples.
It implements the broker contracts with exchange kinds topic, direct and fanout,
round-robin delivery across consumers of a queue and a backlog for queues without consumers.
*/
package inmemory
