package core

// Identity is the authenticated user a connection belongs to. It is resolved
// once at connection time and immutable for the lifetime of the connection.
type Identity struct {
	ID       string
	Username string
	Avatar   string
}
