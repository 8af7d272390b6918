// Package approval resolves manual approval gates.
//
// When every task a gate requires has completed, the scheduler asks an
// [Approver] for a [Decision] on its own goroutine and keeps running
// unrelated tasks while it waits. Approvers shipped here:
//
//   - [AutoApprove] and [AutoReject]: fixed answers for unattended runs and tests
//   - [Func]: adapts a function
//   - [PromptApprover]: asks an operator on the terminal
//   - [FileApprover]: waits for a marker file dropped into a directory,
//     for example by a CI job or a chat bot
//
// An approver error is treated by the scheduler as a rejection whose reason
// is the error text.
package approval
