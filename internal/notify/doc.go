// Package notify forwards checkin announcements and validation notices to
// the external notification service. Delivery is best effort: the ledger
// records locally first and treats forwarding failures as log-worthy, not
// fatal.
package notify
