// Package failure classifies ingestion API failures into a fixed set of kinds.
//
// Classification is the only place retry eligibility is decided: callers ask
// KindOf(err).Retryable() rather than inspecting status codes themselves.
package failure
