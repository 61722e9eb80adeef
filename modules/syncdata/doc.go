// Package syncdata exposes the cloud aggregate store over HTTP.
//
// The surface is deliberately small: one GET returning the caller's whole
// aggregate and one PUT replacing it. The sync engine on the client owns all
// merge and ownership logic; the server stores blobs.
package syncdata
