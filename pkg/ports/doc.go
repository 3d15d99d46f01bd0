/*
Package ports defines the driven ports (interfaces) consumed by the Cadence interpreter.

These interfaces decouple the core logic from external implementations, allowing
the interpreter to work with various storage backends, language models and tool transports.

# Key Interfaces

  - SessionPersistence: stores session records (memory or a remote keyed store).
  - LanguageModelClient: completes prompts for prompt steps.
  - ToolInvoker: performs the HTTP call behind tool_api steps.
  - DistributedLocker: serializes session access across coordinator replicas.
*/
package ports
