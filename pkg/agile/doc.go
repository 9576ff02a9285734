/*
Package agile derives delivery metrics from sprint and story history.

The tracker records metric samples per (team, type) series and computes
velocity, cycle and lead time, throughput, burndown/burnup charts,
defect and rework rates, and commitment reliability. Trends come from a
least-squares fit over the series; velocity forecasts use an
exponentially weighted moving average with trend and capacity
adjustments and a 95% confidence interval.

Retrospective analysis is pluggable: sentiment classification, theme
extraction and pattern detection are function types with neutral
defaults.
*/
package agile
