package slitdrift

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FrameStore is the source of raw frames. IDs are file names.
type FrameStore interface {
	List(ctx context.Context) ([]string, error)
	Header(ctx context.Context, id string) (FrameInfo, error)
	Load(ctx context.Context, id string) (*Frame, error)
}

// DirStore serves the FITS files of one directory.
type DirStore struct {
	Dir    string
	Config Config
}

// NewDirStore returns the store for the night directory of obs.
func NewDirStore(obs Observation, cfg Config) *DirStore {
	return &DirStore{Dir: filepath.Join(obs.Home, obs.Date), Config: cfg}
}

func (s *DirStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".fits", ".fit", ".fts":
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *DirStore) Header(ctx context.Context, id string) (FrameInfo, error) {
	if err := ctx.Err(); err != nil {
		return FrameInfo{}, err
	}
	return ReadFrameInfo(filepath.Join(s.Dir, id), s.Config)
}

func (s *DirStore) Load(ctx context.Context, id string) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadFrame(filepath.Join(s.Dir, id), s.Config)
}

// MemStore holds frames in memory. Load hands out clones.
type MemStore struct {
	mu     sync.RWMutex
	frames map[string]*Frame
}

func NewMemStore() *MemStore {
	return &MemStore{frames: make(map[string]*Frame)}
}

// Add stores f under f.Info.Name, replacing any frame of that name.
func (s *MemStore) Add(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.frames[f.Info.Name]; ok {
		old.Close()
	}
	s.frames[f.Info.Name] = f
}

func (s *MemStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.frames))
	for id := range s.frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemStore) Header(ctx context.Context, id string) (FrameInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[id]
	if !ok {
		return FrameInfo{}, fmt.Errorf("frame %s: %w", id, os.ErrNotExist)
	}
	return f.Info, nil
}

func (s *MemStore) Load(ctx context.Context, id string) (*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[id]
	if !ok {
		return nil, fmt.Errorf("frame %s: %w", id, os.ErrNotExist)
	}
	return f.Clone(), nil
}

// SelectMaskFrames returns, in name order, the headers of the frames taken
// on the observation night whose object is the observed mask. Frames
// without an object name are skipped.
func SelectMaskFrames(ctx context.Context, store FrameStore, obs Observation, logger *slog.Logger) ([]FrameInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prefix, err := obs.FilePrefix()
	if err != nil {
		return nil, err
	}
	ids, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	var selected []FrameInfo
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		info, err := store.Header(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reading header of %s: %w", id, err)
		}
		if info.Object == "" {
			logger.Debug("frame has no object name", "frame", id)
			continue
		}
		if info.Object != obs.Mask {
			continue
		}
		selected = append(selected, info)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("mask %s on %s: %w", obs.Mask, obs.Date, ErrNoFrames)
	}
	logger.Info("selected mask frames", "mask", obs.Mask, "date", obs.Date, "frames", len(selected))
	return selected, nil
}
