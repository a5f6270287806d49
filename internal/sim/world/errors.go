package world

import "errors"

var (
	// ErrUnknownTarget is returned when an event or removal names a voxel that
	// is not registered.
	ErrUnknownTarget = errors.New("unknown target voxel")
	// ErrUnknownSource is returned when a neighbor link starts at a voxel that
	// is not registered.
	ErrUnknownSource = errors.New("unknown source voxel")
	// ErrDuplicateVoxel is returned by RegisterVoxel when the id is taken.
	ErrDuplicateVoxel = errors.New("voxel already registered")
	// ErrCorruptedState marks a failure the loop cannot recover from.
	ErrCorruptedState = errors.New("corrupted state")
	// ErrLoopStarted is returned when a simulation loop is already running.
	ErrLoopStarted = errors.New("simulation loop already running")
)
