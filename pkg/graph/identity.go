// Package graph holds the values shared by every layer of the context stack:
// object identities and the objects themselves.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

// TemporaryPrefix marks keys minted by an editing context before the object
// has been saved. Stores never hand out keys with this prefix.
const TemporaryPrefix = "t-"

// Identity names a single object: the entity it belongs to and its key.
// Identity is comparable and is used as a map key throughout the stack.
type Identity struct {
	Entity    string
	Key       string
	Temporary bool
}

// IsZero reports whether the identity has not been assigned.
func (id Identity) IsZero() bool {
	return id.Entity == "" && id.Key == ""
}

// String renders the identity as "<entity>/<key>".
func (id Identity) String() string {
	if id.IsZero() {
		return ""
	}
	return id.Entity + "/" + id.Key
}

// MarshalText implements encoding.TextMarshaler so identities can key JSON maps.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentity parses the "<entity>/<key>" form produced by String.
func ParseIdentity(s string) (Identity, error) {
	entity, key, ok := strings.Cut(s, "/")
	if !ok || entity == "" || key == "" {
		return Identity{}, fmt.Errorf("malformed identity %q", s)
	}
	return NewIdentity(entity, key), nil
}

// NewIdentity builds an identity, deriving the temporary flag from the key.
func NewIdentity(entity, key string) Identity {
	return Identity{
		Entity:    entity,
		Key:       key,
		Temporary: strings.HasPrefix(key, TemporaryPrefix),
	}
}

// ErrNoIdentity is returned when an operation needs an object that has not
// been given an identity yet.
var ErrNoIdentity = errors.New("object has no identity")
