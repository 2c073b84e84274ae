/*
Package broker holds the contracts between the event provider and a message broker:
the capability interfaces a transport implements (Dialer, Connection, Exchange, Queue),
the wire message shapes, the provider Options and the event Sink contract.
*/
package broker
