/*
Package cadence is a declarative protocol interpreter.

A protocol is a named, ordered list of steps. Each step either sends a prompt to
a language model, calls an external HTTP tool, evaluates conditions against the
session, or ends the session. Steps read and write a session-scoped variable
map, and strings inside steps may reference session values with placeholders
such as {name} or {session.data.user.city}.

# Concept

The Engine owns three things: a registry of protocols and tools, a session
manager that serializes access to each session, and a task coordinator that
runs many protocols in parallel on a bounded worker pool. Language models, tool
transports and session stores are ports; without them the engine falls back to
deterministic mock behavior, which keeps protocols testable offline.

# Usage

	eng, err := cadence.New()
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Shutdown(context.Background())

	_ = eng.RegisterProtocol(domain.Protocol{
		Name: "greet",
		Steps: []domain.Step{
			{ID: "hello", Action: domain.ActionPrompt, Prompt: "Hello {name}"},
			{ID: "done", Action: domain.ActionEnd},
		},
	})

	s, _ := eng.CreateSessionWithID(ctx, "s1", "alice", 0, map[string]any{"name": "Ada"})
	res, err := eng.Run(ctx, "greet", s.ID)

# Concurrency

Runs submitted with Submit execute on the coordinator's worker pool. At most
one run mutates a given session at a time; runs on different sessions proceed
in parallel. Cancellation is checked between steps and never interrupts an
external call in flight.
*/
package cadence
