// Package validation checks a parsed sprint plan and compiles it into an
// ExecutablePlan.
//
// Validation never stops at the first problem. Every duplicate id, dangling
// reference, dependency cycle, and contradictory approval gate is collected
// into a single Result so a plan author can fix them in one pass. Problems
// that do not prevent execution, such as unparseable duration estimates, are
// reported as warnings.
package validation
