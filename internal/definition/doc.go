// Package definition compiles declarative store definitions written in CUE.
//
// A definition directory holds one CUE package with a top-level store field:
//
//	store: profile: {
//	    state: {name: "layouwen", age: 100}
//	    mutations: {
//	        changeName: set: name: "payload"
//	        changeAge: set: age:   "payload"
//	    }
//	    actions: {
//	        changeAge: steps: [{delay: "2s", commit: "changeAge"}]
//	    }
//	    getters: {
//	        info: "'我叫' + string(state.name) + '，今年' + string(state.age)"
//	    }
//	}
//
// Mutation, payload, condition and getter bodies are expr-lang expressions over
// {state, payload}. A getter only reads the fields it names as state.<field>, so
// it is recomputed only when one of those changes. Integers decode as int64.
//
// Compile errors carry the CUE position of the offending value.
package definition
