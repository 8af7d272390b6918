// Package plan loads sprint plan documents.
//
// A plan is accepted as YAML, TOML, or JSON. Every encoding is decoded into
// a generic tree first and then shape-checked by a single walker, so a
// structural problem is reported the same way whatever the encoding: as an
// [errors.ParseError] naming the offending field path, for example
// "sprint.tasks[2].dependencies".
//
// The loader only checks shape. Semantic problems such as duplicate ids,
// dangling references, or dependency cycles are left for the validation
// package, and duplicate task declarations are preserved so they can be
// reported there.
package plan
