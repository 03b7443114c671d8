// Package harness runs scene scenarios against a live runtime.
//
// A scenario applies a sequence of authoring operations, pointer input and
// host events to a fresh engine.Runtime, waits for both mirrors after each
// step, and then checks assertions over the message journal, the final
// store state, the mirror summary and the messages the render context sent
// back.
//
// # Scenario Format
//
//	name: trimesh_rescale
//	description: "Rescaling a trimesh node rebuilds its shape in place"
//	world: worlds/courtyard.cue          # optional, relative to the file
//	setup:
//	  - op: create
//	    kind: primitive
//	    id: p1
//	    data: { positions: [0,0,0, 1,0,0, 0,1,0], indices: [0,1,2] }
//	flow:
//	  - op: change
//	    kind: node
//	    id: n1
//	    data: { scale: [1,2,1] }
//	  - op: dispose
//	    kind: node
//	    id: missing
//	    expect: { case: NOT_FOUND }
//	  - op: click
//	    pointer: [0, 0]
//	assertions:
//	  - type: trace_contains
//	    subject: change_node
//	    id: n1
//	  - type: final_state
//	    kind: node
//	    id: n1
//	    expect: { scale: [1,2,1] }
//	  - type: summary
//	    expect: { physics: { bodies: 1 } }
//
// # Operations
//
//   - create, change, dispose: scene store edits by kind and id
//   - pointerdown, pointermove, pointerup: raw pointer input
//   - click, drag: a whole gesture synthesized from the scenario's click policy
//   - host: a remote player event (player_joined, player_location, ...)
//
// # Assertion Types
//
//   - trace_contains: a journaled message with subject, optional id and data subset
//   - trace_order: subjects (optionally "subject/id") appear in order
//   - trace_count: a subject appears exactly N times
//   - final_state: an entity's state in the store matches a subset
//   - journal_row: a row of the SQLite journal matches a subset
//   - summary: the mirror summary matches a subset
//   - output_contains: the render context sent a message with a data subset
//   - error_count: the error sink counted N failures with a code
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory journal, sequential entity ids
// ("gen-1", "gen-2", ...) and a PointerClock for input timestamps, so the
// same scenario always produces byte-identical traces for golden comparison.
package harness
