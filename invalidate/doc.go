// Package invalidate's wire schema (wireMessage in wire.go) is part of
// the module's cross-process contract: a publisher and a subscriber that
// disagree on it will not coordinate, and the failure mode is silent
// (messages simply fail to decode and are dropped). Pin this schema;
// don't version it ad hoc per deployment.
package invalidate
