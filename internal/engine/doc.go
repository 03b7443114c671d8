// Package engine wires the authoring context to the render and physics
// mirrors.
//
// ARCHITECTURE:
//
// Three contexts, each a single goroutine:
//   - authoring: the caller's goroutine. It drives the scene store, which
//     publishes onto the bus.
//   - render: drains its queue into a render.Mirror.
//   - physics: drains its queue into a physics.Mirror.
//
// Message Flow:
//  1. A store mutation publishes one or more messages.
//  2. The bus stamps each with a seq, journals it and enqueues a deep copy
//     on every subscribed context queue.
//  3. Each Context.Run loop applies messages in FIFO order.
//  4. Render results (clicked_node, gesture) land on the authoring inbox.
//
// Contexts never share mutable state and never wait on each other. A
// failure while applying one message is logged, counted in the Sink and
// the loop continues with the next message.
package engine
