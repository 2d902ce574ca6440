package pixelrts

import (
	"errors"
	"fmt"
)

// Codec errors. Every error returned by Encode and Decode matches one of
// these with errors.Is.
var (
	// ErrValidation is returned for malformed encode options.
	ErrValidation = errors.New("pixelrts: invalid options")

	// ErrIntegrity is returned when decoded data does not match its recorded hash.
	ErrIntegrity = errors.New("pixelrts: integrity check failed")

	// ErrCapacity is returned when a payload exceeds the largest supported grid.
	ErrCapacity = errors.New("pixelrts: payload exceeds capacity")

	// ErrMetadata is returned when a container carries no usable PixelRTS metadata.
	ErrMetadata = errors.New("pixelrts: unusable metadata")

	// ErrEncodingMismatch is returned when a container is decoded under the
	// wrong interpretation, e.g. a program container passed to Decode.
	ErrEncodingMismatch = errors.New("pixelrts: encoding type mismatch")
)

// IntegrityError reports a hash mismatch. Segment is empty when the whole
// payload failed verification.
type IntegrityError struct {
	Segment  string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	if e.Segment != "" {
		return fmt.Sprintf("pixelrts: segment %q hash mismatch: expected %s, got %s", e.Segment, e.Expected, e.Actual)
	}
	return fmt.Sprintf("pixelrts: data hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// Is reports whether target is ErrIntegrity.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}
