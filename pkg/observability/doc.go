/*
Package observability provides lifecycle hooks for monitoring protocol runs.

Aggregate fans one set of interpreter events out to several hook sets, and
StepMetrics turns step and tool events into Prometheus collectors.
*/
package observability
