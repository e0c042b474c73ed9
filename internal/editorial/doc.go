// Package editorial is the client boundary to the editorial system's API:
// journal and issue resolution plus DOI registration lookups. The intake
// core consumes the Client interface; the HTTP implementation lives here so
// deployments without network access can substitute their own.
package editorial
