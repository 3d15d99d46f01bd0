/*
Package coordinator schedules protocol runs with bounded parallelism.

A fixed pool of workers consumes a bounded submission queue, so the number of
simultaneously running tasks never exceeds the pool size. Each task gets a
TaskRecord that moves exactly once from pending through running to a terminal
status. Cancellation is cooperative: a running task stops before its next step.
*/
package coordinator
