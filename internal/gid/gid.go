// Package gid encodes and decodes the structured identifiers used by the
// remote commerce platform (gid://shopify/Product/123).
package gid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	scheme = "gid://"
	// DefaultNamespace is the namespace used by the remote platform.
	DefaultNamespace = "shopify"
)

// ErrMalformed marks identifiers that cannot be parsed losslessly.
var ErrMalformed = errors.New("gid: malformed remote id")

// MalformedError carries the offending input.
type MalformedError struct {
	Input  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("gid: malformed remote id %q: %s", e.Input, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformed.
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// ID is a parsed remote identifier.
type ID struct {
	Namespace string
	Type      string
	Number    int64
}

// New builds an ID in the default namespace.
func New(typ string, number int64) ID {
	return ID{Namespace: DefaultNamespace, Type: typ, Number: number}
}

// String reconstructs the wire form.
func (id ID) String() string {
	return scheme + id.Namespace + "/" + id.Type + "/" + strconv.FormatInt(id.Number, 10)
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Parse decodes s. Anything that would not round-trip through String is rejected.
func Parse(s string) (ID, error) {
	if !strings.HasPrefix(s, scheme) {
		return ID{}, &MalformedError{Input: s, Reason: "missing gid:// scheme"}
	}
	parts := strings.Split(strings.TrimPrefix(s, scheme), "/")
	if len(parts) != 3 {
		return ID{}, &MalformedError{Input: s, Reason: "expected namespace/type/number"}
	}
	namespace, typ, tail := parts[0], parts[1], parts[2]
	if namespace == "" || typ == "" {
		return ID{}, &MalformedError{Input: s, Reason: "empty namespace or type"}
	}
	if tail == "" || strings.TrimLeft(tail, "0123456789") != "" {
		return ID{}, &MalformedError{Input: s, Reason: "numeric tail required"}
	}
	if len(tail) > 1 && tail[0] == '0' {
		return ID{}, &MalformedError{Input: s, Reason: "leading zero in numeric tail"}
	}
	n, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || n <= 0 {
		return ID{}, &MalformedError{Input: s, Reason: "numeric tail out of range"}
	}
	return ID{Namespace: namespace, Type: typ, Number: n}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}
