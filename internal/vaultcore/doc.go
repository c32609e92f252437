// Package vaultcore implements the reactive state store and the coupled
// file-lifecycle subsystems of the vault engine: the Store itself, the
// cipher cache / repo lifecycle, the remote and repo file mirrors, event
// stream integration, the transfers engine, the details editor, browsers,
// and dir pickers. Like internal/sync in the teacher codebase, this is one
// cohesive domain package split across many files by concern rather than
// many small packages, because every concern here shares one State and one
// mutation pipeline.
package vaultcore
