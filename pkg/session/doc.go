/*
Package session implements session management and persistence orchestration.

The Manager serializes mutations per session id, so that two runs against the
same session never interleave, while runs on different sessions proceed in
parallel. It can additionally hold a distributed lock (for several coordinator
replicas sharing one store) and keep a mirror store in sync with the primary.
*/
package session
