// Package checkin turns a held package into a persisted attempt. The whole
// admission runs inside one transaction: the attempt row, the article
// package resolution, and the validity verdict commit together or not at
// all.
package checkin
