// Package runner repeatedly executes gtest cases until a duration budget is
// spent.
//
// The main components are:
//   - Executor: runs one test identity once in an isolated child process and
//     classifies the result
//   - WorkQueue: cyclic round-robin order over the selected identities
//   - Scheduler: keeps a fixed number of attempts in flight until the budget
//     is exhausted or the session is cancelled
//   - Broadcaster: fans every outcome out to each registered OutcomeConsumer
//   - Aggregator: consumer maintaining live and final statistics
//
// Outcomes are recorded into the RunSession passed to Scheduler.Run and
// observed by every consumer in the same order.
package runner
