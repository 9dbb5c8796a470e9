// Package delivery posts finalized translation records to the downstream
// backend over HTTP. Each record is sent exactly once; retries are left to
// the backend.
package delivery
