/*
Package runtime implements the connector core on top of the participant
engine in internal/engine.

# Entities

A Connector owns one engine participant, opened from a configuration source
(a file path or an inline "str://" document) and a "Library::Participant"
name. Inputs and Outputs are handles to the participant's readers and
writers, looked up by "Subscriber::Reader" and "Publisher::Writer" names.

	Connector ─┬─ Input  ── SampleCollection ── Sample
	           └─ Output ── Instance

Every entity carries its own disposal flag. An operation checks the flag of
the entity it runs on and of every entity above it, so disposing a
Connector invalidates its Inputs and Outputs without touching their flags.
Engine resources are released exactly once through nativeHandle.

# Waiting

Connector.Wait and Input.WaitForSamples block until a reader holds unread
samples, the timeout elapses, or the context ends. Only one wait may be
outstanding per Connector; an overlapping wait or a Dispose during a wait
fails with ErrConcurrentWait.

# Field access

Sample offers two views over the same data. The loose getters (GetNumber,
GetBool, GetString) return type defaults for missing or mismatched fields.
The strict decoders (GetAs, SampleAs, GetAsObject) fail with
ErrSchemaMismatch instead.

# Observability

Options attach a ServiceLogger, Prometheus collectors (NewMetrics) and an
OpenTelemetry tracer provider. Write, DisposeInstance and Wait record spans;
the trace id of a write travels with the sample.
*/
package runtime
