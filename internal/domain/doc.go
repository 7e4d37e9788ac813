// Package domain defines the core types and contracts of the live chat relay.
//
// Stream state, the tagged event schema exchanged with clients, the Session
// contract implemented by each transport, and sentinel errors. No
// implementation code beyond payload decoding and validation.
package domain
