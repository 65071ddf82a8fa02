// Package database executes SQL against configured database profiles and
// normalizes results into JSON-compatible shapes for downstream token
// budgeting.
//
// A Registry owns one lazily opened Client per profile. Clients classify
// each statement before it reaches the driver: read verbs go through the
// query path, everything else through the exec path, and the profile's
// write policy and row cap are applied centrally so no handler can bypass
// them.
package database
