package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind is the kind of work a step describes.
type Kind string

const (
	// WaitForObjectKind waits until an object matching a location pattern exists.
	WaitForObjectKind Kind = "wait-for-object"
	// RunFunctionKind calls a registered function.
	RunFunctionKind Kind = "run-function"
	// TransferDataKind copies data from an object store into a table.
	TransferDataKind Kind = "transfer-data"
)

// ErrUnknownKind is returned when a kind name is not recognised.
var ErrUnknownKind = errors.New("unknown step kind")

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{WaitForObjectKind, RunFunctionKind, TransferDataKind}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case WaitForObjectKind, RunFunctionKind, TransferDataKind:
		return true
	}

	return false
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind parses a kind name. Underscores and case are tolerated: "Wait_For_Object" is accepted.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !k.Valid() {
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}

	return k, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errors.Wrapf(ErrUnknownKind, "%q", string(k))
	}

	return []byte(k), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}
