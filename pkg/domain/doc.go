/*
Package domain contains the core models of the Cadence protocol interpreter.

It defines the declarative entities that the interpreter executes and the records
it produces. The package is kept pure and free of I/O so that every adapter
(storage, transport, language models) can depend on it.

# Key Entities

  - Protocol: a named, ordered list of Steps (prompt, tool_api, condition, end).
  - Session: the per-run variable scope plus identity and lifecycle flag.
  - ToolDefinition: an external HTTP-callable action referenced by tool_api steps.
  - ExecutionResult: the outcome record of one interpreter run.
  - TaskRecord: the lifecycle record of a run supervised by the coordinator.
*/
package domain
