package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventIndex is the local record of the last successful sync: when it ran,
// what it did, and which event mirrors each task identity.
type EventIndex struct {
	Mappings map[string]string `json:"mappings"`
	LastSync time.Time         `json:"last_sync"`
	Calendar string            `json:"calendar,omitempty"`
	Created  int               `json:"created"`
	Updated  int               `json:"updated"`
	Deleted  int               `json:"deleted"`

	Path  string `json:"-"`
	mu    sync.RWMutex
	dirty bool
}

// Open loads the index at path, or returns an empty one if the file does not
// exist yet.
func Open(path string) (*EventIndex, error) {
	idx := &EventIndex{
		Mappings: make(map[string]string),
		Path:     path,
	}

	if _, err := os.Stat(path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *EventIndex) Load() error {
	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := json.NewDecoder(f).Decode(idx); err != nil {
		return err
	}
	if idx.Mappings == nil {
		idx.Mappings = make(map[string]string)
	}
	return nil
}

func (idx *EventIndex) Save() error {
	idx.mu.RLock()
	if !idx.dirty {
		idx.mu.RUnlock()
		return nil
	}
	idx.mu.RUnlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	dir := filepath.Dir(idx.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	// Write to a temp file and rename so a crash never leaves half a file.
	tmp := idx.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(idx); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, idx.Path); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

// Len is the number of mapped tasks.
func (idx *EventIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Mappings)
}

// Record replaces the index contents with the outcome of a successful sync.
func (idx *EventIndex) Record(at time.Time, calendarID string, mappings map[string]string, created, updated, deleted int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.Mappings = make(map[string]string, len(mappings))
	for taskID, eventID := range mappings {
		idx.Mappings[taskID] = eventID
	}
	idx.LastSync = at
	idx.Calendar = calendarID
	idx.Created, idx.Updated, idx.Deleted = created, updated, deleted
	idx.dirty = true
}
