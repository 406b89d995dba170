package camera

import (
	"context"
	"errors"
	"fmt"
)

// FacingMode selects the physical direction of a camera.
type FacingMode string

const (
	FacingAny         FacingMode = ""
	FacingEnvironment FacingMode = "environment"
	FacingUser        FacingMode = "user"
)

// ParseFacingMode accepts "", "any", "environment", "rear", "user" and "front".
func ParseFacingMode(s string) (FacingMode, error) {
	switch s {
	case "", "any":
		return FacingAny, nil
	case "environment", "rear", "back":
		return FacingEnvironment, nil
	case "user", "front":
		return FacingUser, nil
	default:
		return FacingAny, fmt.Errorf("unknown facing mode %q", s)
	}
}

// Constraints describes the preferred video stream. The zero value is the
// minimal, unconstrained request.
type Constraints struct {
	FacingMode FacingMode
	Width      int
	Height     int
}

// Minimal reports whether c places no constraint at all.
func (c Constraints) Minimal() bool {
	return c == Constraints{}
}

// ErrOverconstrained is matched by every OverconstrainedError.
var ErrOverconstrained = errors.New("camera: constraints cannot be satisfied")

// OverconstrainedError names the constraint no source could satisfy.
type OverconstrainedError struct {
	Constraint string
}

func (e *OverconstrainedError) Error() string {
	return fmt.Sprintf("camera: no source satisfies %s", e.Constraint)
}

func (e *OverconstrainedError) Is(target error) bool {
	return target == ErrOverconstrained
}

// MediaDevices is the constraint-based device API.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// LegacyMediaDevices is the older callback-based device API. Exactly one
// of the callbacks is invoked, possibly from another goroutine.
type LegacyMediaDevices interface {
	GetUserMedia(c Constraints, onSuccess func(Stream), onError func(error))
}

// Host carries the device APIs available in the running environment.
// A nil field means the API is absent.
type Host struct {
	Devices MediaDevices
	Legacy  LegacyMediaDevices
}
