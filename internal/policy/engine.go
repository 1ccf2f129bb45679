package policy

// Engine is the opaque policy backend the core gate consults. Per the
// concurrency model, its methods are called outside the core thread
// and must never be invoked while holding any router-core lock.
type Engine interface {
	// LookupUser maps an authenticated identity plus connection
	// metadata to a compiled policy group name, or "" if no group
	// applies (in which case the gate denies).
	LookupUser(user, hostIP, vhost, connName, connID string) string

	// LookupSettings resolves the named group's compiled settings for
	// vhost.
	LookupSettings(vhost, group string) (*Settings, bool)

	// CloseConnection asks the engine's owner to close a connection,
	// used when the engine itself decides an already-open connection
	// must be dropped (e.g. a live policy reload revokes a group).
	CloseConnection(connID string)
}
