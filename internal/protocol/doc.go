// Package protocol owns the wire contract of the signout transfer link.
//
// Ownership boundary:
// - control slot command vocabulary
// - metadata blob encoding and offset-paginated reads
// - shared error taxonomy
package protocol
