// Package strategy implements the auth flows azauth can run (cached, iwa,
// broker, web and devicecode) on top of an identity.Client, and the factory
// the orchestrator uses to build them.
package strategy
