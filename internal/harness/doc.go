// Package harness runs conformance scenarios against the orchestrator.
//
// A scenario seeds an in-memory project tree, configures generators from the
// built-in registry, then drives the engine through a list of steps the way
// the build, clean and watch commands would. Every Changeset is journaled to
// an in-memory store so assertions can ask which Changesets reached a path.
//
// # Scenario Format
//
//	name: copy_lifecycle
//	description: "Copies follow their sources"
//	generators:
//	  - path: copy
//	    options: { include: "lib/**/*.js" }
//	files:
//	  lib/foo.js: "x"
//	steps:
//	  - op: build
//	  - op: write
//	    path: lib/bar.js
//	    content: "y"
//	  - op: remove
//	    path: lib/foo.js
//	assertions:
//	  - type: absent
//	    path: lib/generated-foo.js
//	  - type: annotation
//	    path: lib/generated-bar.js
//	    key: generated-from
//	    value: ./bar.js
//
// Write and remove steps change the tree and then hand the engine a single
// root change, as one watch batch would.
//
// # Golden Files
//
// RunWithGolden renders the step log and the final tree and compares them
// against testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
