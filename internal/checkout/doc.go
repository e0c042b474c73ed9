// Package checkout hands validated attempts to the publication side: it
// flags them queued, bundles their image members, and streams member
// content to the configured blob uploader.
package checkout
