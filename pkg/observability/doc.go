/*
Package observability provides tools for monitoring the bridge.

Metrics turns lifecycle hooks into Prometheus collectors: tracked entities
per kind, command transitions per verb, action and phase durations and
working memory writes. LogHooks emits an audit trail through slog, and
ChainHooks lets both run side by side.
*/
package observability
