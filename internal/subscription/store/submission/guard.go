// Package submission deduplicates portal form resubmissions. AddProduct is
// not idempotent (repeating it increments the quantity again), so the portal
// sends a per-form submission token and the guard admits each token once
// within a TTL window.
package submission

import "time"

// DefaultTTL bounds how long a claimed token stays on record. Long enough to
// absorb double-clicks and browser retries, short enough that token storage
// stays small.
const DefaultTTL = 15 * time.Minute
