// Package ledger is the append-only audit trail of a validation run. Every
// notice is persisted locally first and only then forwarded; a notifier
// outage never loses audit data.
package ledger
