// Package monitor is the dispatch layer: a filesystem watch over the
// configured inbound directories feeding a bounded queue consumed by a
// fixed worker pool. Each worker runs the full intake of one package at a
// time: hold, checkin, validation pipeline.
package monitor
