// Package faults defines the error categories shared by every taskstack
// package and their mapping to wire status codes.
//
// Package-specific sentinels wrap one of the categories below, so callers can
// match either the precise cause or the broad category:
//
//	var ErrNotFound = fmt.Errorf("%w: primitive not found", faults.ErrNotFound)
//
//	errors.Is(err, primitive.ErrNotFound) // precise
//	errors.Is(err, faults.ErrNotFound)    // category
package faults

import "errors"

// Categories.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrKinematic        = errors.New("kinematic query failed")
	ErrConsistency      = errors.New("dimension mismatch")
	ErrSolverInfeasible = errors.New("solver infeasible")
	ErrCollisionQuery   = errors.New("collision query failed")
	ErrHandleExpired    = errors.New("handle expired")
	ErrUnavailable      = errors.New("unavailable")
)

// Status codes returned on the wire. Zero is success, every failure is negative.
const (
	StatusOK             = 0
	StatusValidation     = -1
	StatusNotFound       = -2
	StatusKinematic      = -3
	StatusConsistency    = -4
	StatusSolver         = -5
	StatusCollisionQuery = -6
	StatusHandleExpired  = -7
	StatusUnavailable    = -8
	StatusInternal       = -99
)

var statusTable = []struct {
	err    error
	status int
}{
	{ErrValidation, StatusValidation},
	{ErrNotFound, StatusNotFound},
	{ErrKinematic, StatusKinematic},
	{ErrConsistency, StatusConsistency},
	{ErrSolverInfeasible, StatusSolver},
	{ErrCollisionQuery, StatusCollisionQuery},
	{ErrHandleExpired, StatusHandleExpired},
	{ErrUnavailable, StatusUnavailable},
}

// Status maps err to its status code. A nil error is StatusOK; an error
// outside every category is StatusInternal.
func Status(err error) int {
	if err == nil {
		return StatusOK
	}
	for _, entry := range statusTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return StatusInternal
}

// Category returns the category sentinel err belongs to, or nil.
func Category(err error) error {
	for _, entry := range statusTable {
		if errors.Is(err, entry.err) {
			return entry.err
		}
	}
	return nil
}
