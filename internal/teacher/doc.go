// Package teacher captures responses from an external text-generation
// capability. Every query ends in exactly one terminal OutputRecord per run:
// success, failed after exhausting retries, or rejected by post-validation
// or the safety scan. The client never propagates call failures to its
// caller; they are downgraded to a terminal status on the record so that a
// single flaky query can never abort a run.
package teacher
