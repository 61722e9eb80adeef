// Package datastore provides cloud store backends for the sync engine.
//
// Every backend stores the user's aggregate as one opaque JSON blob keyed
// by the user ID, matching the sync engine's whole-aggregate granularity.
// S3Store is the production default; MongoStore and RedisStore serve
// deployments that already run those systems; HTTPStore is the client-side
// implementation talking to the sync endpoints over HTTP.
package datastore
