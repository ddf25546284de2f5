// Package codec hashes, signs, verifies and decodes protocol events.
//
// Every event that enters the store or leaves for a relay passes through
// Verify. Verification is pure: it never touches the network or the store.
package codec
