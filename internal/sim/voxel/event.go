package voxel

// Event kinds as they appear on the wire and in the journal.
const (
	KindUpdateData = "UPDATE_DATA"
	KindClearData  = "CLEAR_DATA"
)

// Event is a closed set of state transitions. Only types in this package can
// implement it; Voxel.Apply handles every variant.
type Event interface {
	Kind() string
	isEvent()
}

// UpdateData replaces the voxel's data.
type UpdateData struct {
	Data string
}

func (UpdateData) Kind() string { return KindUpdateData }
func (UpdateData) isEvent()     {}

// ClearData resets the voxel's data to empty.
type ClearData struct{}

func (ClearData) Kind() string { return KindClearData }
func (ClearData) isEvent()     {}

// Payload returns the data carried by ev, if any.
func Payload(ev Event) string {
	if u, ok := ev.(UpdateData); ok {
		return u.Data
	}
	return ""
}
