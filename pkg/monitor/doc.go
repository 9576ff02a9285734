/*
Package monitor keeps bounded performance histories and raises alerts.

Samples land in ring buffers (one global, one per agent), so memory use
is fixed regardless of uptime. An alert rule fires only after the
configured number of consecutive breaches, and deduplicates per
(metric, agent) while unresolved; a sample back under the threshold
resolves the alert. Statistics are computed on demand behind a short
TTL cache.
*/
package monitor
