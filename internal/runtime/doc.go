/*
Package runtime implements the protocol interpreter.

It contains the placeholder resolver, the condition evaluator, the step
executor and the interpreter loop that ties them together. The loop is
single-threaded per run; concurrency across runs is the coordinator's job.
*/
package runtime
