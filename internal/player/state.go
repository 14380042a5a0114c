// Package player holds presentation-adapter playback state: the current
// song index, repeat flag and volume. This is deliberately not engine
// state; the engine is told about play events (play counts) but never
// tracks what the platform media widget is doing.
package player

import (
	"sync"
	"time"

	"smfplayer/pkg/models"
)

// State represents the current playback state
type State struct {
	Song        *models.Song `json:"song,omitempty"`
	Index       int          `json:"index"` // -1 when nothing is selected
	IsPlaying   bool         `json:"isPlaying"`
	CurrentTime int          `json:"currentTime"` // in seconds
	Volume      float64      `json:"volume"`      // 0.0 to 1.0
	Repeat      bool         `json:"repeat"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// StateManager manages playback state and notifies listeners
type StateManager struct {
	state     *State
	mutex     sync.RWMutex
	listeners []chan *State
}

// NewStateManager creates a new playback state manager
func NewStateManager() *StateManager {
	return &StateManager{
		state: &State{
			Index:     -1,
			Volume:    1.0,
			UpdatedAt: time.Now(),
		},
	}
}

// GetState returns a copy of the current playback state
func (sm *StateManager) GetState() *State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	stateCopy := *sm.state
	return &stateCopy
}

// SetSong updates the selected song and its playlist index
func (sm *StateManager) SetSong(song *models.Song, index int) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.Song = song
	sm.state.Index = index
	sm.state.CurrentTime = 0
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// SetPlaying updates the playing/paused flag
func (sm *StateManager) SetPlaying(isPlaying bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.IsPlaying = isPlaying
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// SetTime updates the playback position
func (sm *StateManager) SetTime(currentTime int) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.CurrentTime = currentTime
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// SetVolume updates the volume
func (sm *StateManager) SetVolume(volume float64) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.Volume = volume
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// ToggleRepeat flips the repeat flag and returns the new value
func (sm *StateManager) ToggleRepeat() bool {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.Repeat = !sm.state.Repeat
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
	return sm.state.Repeat
}

// ClearSong clears the selection (when playback stops)
func (sm *StateManager) ClearSong() {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	sm.state.Song = nil
	sm.state.Index = -1
	sm.state.IsPlaying = false
	sm.state.CurrentTime = 0
	sm.state.UpdatedAt = time.Now()
	sm.notifyListeners()
}

// Subscribe adds a listener for state changes
func (sm *StateManager) Subscribe() <-chan *State {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	ch := make(chan *State, 10)
	sm.listeners = append(sm.listeners, ch)
	return ch
}

// notifyListeners sends state updates to all subscribers (lock held)
func (sm *StateManager) notifyListeners() {
	stateCopy := *sm.state
	for i := 0; i < len(sm.listeners); i++ {
		select {
		case sm.listeners[i] <- &stateCopy:
		default:
			close(sm.listeners[i])
			sm.listeners = append(sm.listeners[:i], sm.listeners[i+1:]...)
			i--
		}
	}
}
