// Package harness runs YAML conformance scenarios against compiled store definitions.
//
// A scenario names a definition directory and a store, then drives it step by step:
//
//	name: rename_updates_info
//	description: committing changeName refreshes the info getter
//	definition: ../definitions
//	store: profile
//	steps:
//	  - read: info
//	    expect: "我叫layouwen，今年100"
//	  - commit: changeName
//	    payload: Tom
//	  - dispatch: changeAge
//	    payload: 42
//	  - advance: 2s
//	assertions:
//	  - type: state
//	    expect: {name: Tom, age: 42}
//	  - type: getter
//	    getter: info
//	    equals: "我叫Tom，今年42"
//
// Time is virtual: delayed work only fires on advance steps, which move a
// testutil.ManualScheduler forward and drain the store loop. Every store event is
// captured in Result.Trace, in seq order, for trace assertions and golden files.
package harness
