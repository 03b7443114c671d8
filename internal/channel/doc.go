// Package channel carries scene messages between execution contexts.
//
// Each context owns a Queue and drains it from a single goroutine. The Bus
// stamps every published message with a sequence number from a logical
// Clock and hands each subscriber its own deep copy, so no mutable state is
// ever shared between contexts. Publishing never blocks on a receiver.
//
// Ordering: a subscriber sees messages in publish order. Consumers must only
// rely on ordering between messages about the same entity.
package channel
