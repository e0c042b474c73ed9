package archive

import "errors"

// ErrCorruptArchive indicates the path is not a valid zip container.
var ErrCorruptArchive = errors.New("corrupt archive")

// ErrNoSuchMember indicates no member carries the requested extension.
var ErrNoSuchMember = errors.New("no such member")

// ErrAmbiguousDocument indicates the archive does not contain exactly one
// XML member. Callers must not assume a primary document always exists.
var ErrAmbiguousDocument = errors.New("zero or multiple XML documents")
