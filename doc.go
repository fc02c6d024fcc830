// Package connector publishes and subscribes typed data samples through a
// small, disposable object graph. A Connector opens one participant of a YAML
// configuration; Outputs stage values on their Instance and write them;
// Inputs read or take the samples that arrived and expose them through a live
// SampleCollection.
//
// # Lifetimes
//
// The Connector is the only root. Disposing an Input or Output never touches
// its Connector, while disposing the Connector makes every further call on
// its Inputs, Outputs, collections and samples fail with ErrDisposed. Dispose
// is idempotent everywhere.
//
// # Field access
//
// Instance setters and Sample getters are permissive: unknown fields and
// mismatched types are absorbed, setters drop what they cannot coerce and
// getters return the type default. Whole-sample decoding through GetAs,
// SampleAs and GetAsObject is strict and reports ErrSchemaMismatch.
//
// # Waiting
//
// Connector.Wait is the only blocking call. A zero timeout polls, WaitInfinite
// blocks until data arrives, and a negative timeout is rejected. Only one wait
// may be outstanding per Connector; an overlapping Wait, or a Dispose issued
// while a wait is pending, fails with ErrConcurrentWait.
//
// # Transports
//
// A domain's transport.system selects how samples travel:
//   - channel: in-process bus shared by every participant of a domain id
//   - kafka: one consumer group per participant
//   - rabbitmq: AMQP fanout with a queue per participant
//   - aws: SNS topics fanned out to one SQS queue per participant
//   - nats: core NATS subjects
//   - http: POST per sample to the peer's listener
//   - io: append-only JSON lines file, handy for recording and replay
//
// Environment variables prefixed with CONNECTOR_TRANSPORT_ override the
// transport settings of the configuration.
package connector
