package voxel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID identifies a grid cell. It is comparable and used directly as a map key.
type ID struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

func (id ID) String() string {
	return fmt.Sprintf("%d,%d,%d", id.X, id.Y, id.Z)
}

// Array returns the [x,y,z] form used on the wire.
func (id ID) Array() [3]int {
	return [3]int{int(id.X), int(id.Y), int(id.Z)}
}

// ErrOutOfRange reports a coordinate that does not fit in int32.
var ErrOutOfRange = errors.New("voxel coordinate out of range")

// FromArray converts the wire form. Coordinates outside int32 are rejected
// rather than truncated onto another cell.
func FromArray(a [3]int) (ID, error) {
	for _, v := range a {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return ID{}, fmt.Errorf("voxel id %v: %w", a, ErrOutOfRange)
		}
	}
	return ID{X: int32(a[0]), Y: int32(a[1]), Z: int32(a[2])}, nil
}

// ParseID parses "x,y,z".
func ParseID(s string) (ID, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return ID{}, fmt.Errorf("voxel id %q: want x,y,z", s)
	}
	var v [3]int32
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return ID{}, fmt.Errorf("voxel id %q: %w", s, err)
		}
		v[i] = int32(n)
	}
	return ID{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Less orders ids by x, then y, then z.
func Less(a, b ID) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
