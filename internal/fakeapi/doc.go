// Package fakeapi is an in-process stand-in for the remote ledger API. It
// issues HS256 bearer tokens on POST /api/login, checks them on every other
// endpoint, and lets tests expire all tokens or make writes fail logically.
//
// It is used by the client tests, the stormtest harness and the http-minimal
// example. It is not a reference implementation of the server.
package fakeapi
