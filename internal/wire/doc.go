// Package wire implements the line-oriented authenticated framing used
// between the intake daemon and out-of-process reporting consumers. Frames
// failing authentication are discarded, never raised; the stream is
// self-healing against corruption.
package wire
