/*
Package gate evaluates quality gates against delivery artifacts.

An evaluation seeds its metrics from a checklist, raises compliance
issues for unjustified failures, runs the gate's criterion predicates
and any custom checks, computes weighted composite scores, and walks a
first-match decision ladder to PASS, CONCERNS or FAIL. Waiving a report
preserves the original decision in its notes.

Story, sprint and release gates ship as presets with increasingly strict
thresholds.
*/
package gate
