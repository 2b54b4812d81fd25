package capture

import (
	"fmt"

	"github.com/vishalkuo/bimap"
)

// State of the capture controller.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateFinalizing
	StateUploading
	StateError
)

var stateNames = func() *bimap.BiMap[State, string] {
	m := bimap.NewBiMap[State, string]()
	m.Insert(StateIdle, "idle")
	m.Insert(StateAcquiring, "acquiring")
	m.Insert(StateRecording, "recording")
	m.Insert(StateFinalizing, "finalizing")
	m.Insert(StateUploading, "uploading")
	m.Insert(StateError, "error")
	return m
}()

func (s State) String() string {
	if name, ok := stateNames.Get(s); ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState is the inverse of String.
func ParseState(name string) (State, error) {
	if s, ok := stateNames.GetInverse(name); ok {
		return s, nil
	}
	return StateIdle, fmt.Errorf("unknown capture state %q", name)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Active reports whether a session holds or may hold resources in this state.
func (s State) Active() bool {
	return s != StateIdle
}
