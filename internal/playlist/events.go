package playlist

// EventKind classifies the discrete notifications the engine emits for the
// presentation adapter to render as user-visible messages.
type EventKind int

const (
	// EventFileMissing: a song's file could not be located and recovery failed;
	// the song was removed and the caller should advance selection.
	EventFileMissing EventKind = iota
	// EventSongRecovered: a moved file was found again and its path rewritten.
	EventSongRecovered
	// EventLoadFailed: a folder walk or playlist open could not be completed.
	EventLoadFailed
	// EventSaveFailed: the playlist snapshot could not be written.
	EventSaveFailed
	// EventPlaylistEmpty: the active playlist has no entries left.
	EventPlaylistEmpty
)

// Event is a discrete engine notification.
type Event struct {
	Kind EventKind
	Path string // file or playlist path the event refers to, if any
}

// Subscribe adds a listener for engine events. The returned channel is
// buffered; a listener that stops draining is dropped rather than allowed to
// block the engine.
func (m *Manager) Subscribe() <-chan Event {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	ch := make(chan Event, 16)
	m.listeners = append(m.listeners, ch)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (m *Manager) Unsubscribe(ch <-chan Event) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	for i, listener := range m.listeners {
		if listener == ch {
			close(listener)
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			break
		}
	}
}

// publish sends an event to all subscribers without blocking.
func (m *Manager) publish(event Event) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	for i := 0; i < len(m.listeners); i++ {
		select {
		case m.listeners[i] <- event:
		default:
			// Listener is full; drop it
			close(m.listeners[i])
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			i--
		}
	}
}
