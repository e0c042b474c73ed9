// Package guard isolates inbound packages before inspection: a safe copy
// into the application-owned work directory, cooperative permission locking
// on the original, and the failed/duplicated rename markers operators rely
// on.
package guard
