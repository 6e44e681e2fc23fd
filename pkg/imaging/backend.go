// Package imaging abstracts volume storage behind a small capability
// interface so the pipeline logic can run against an in-memory backend
// in tests and against NIfTI files in production.
package imaging

import (
	"fmt"
	"os"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/yw7/sc-lesion-frequency-map/pkg/nifti"
	"github.com/yw7/sc-lesion-frequency-map/pkg/resample"
	"github.com/yw7/sc-lesion-frequency-map/pkg/volume"
)

// Backend is the storage capability the pipeline depends on: loading and
// saving volumes by path, existence checks for the template-space cache,
// and transform loading.
type Backend interface {
	// Load reads the volume stored at path
	Load(path string) (*volume.Volume, error)

	// Save stores the volume at path
	Save(path string, v *volume.Volume) error

	// Exists reports whether a volume is stored at path
	Exists(path string) bool

	// LoadTransform reads the spatial transform stored at path
	LoadTransform(path string) (resample.Transform, error)
}

// Disk is the production backend: NIfTI files on the filesystem.
type Disk struct{}

// NewDisk creates the file-based backend.
func NewDisk() *Disk { return &Disk{} }

func (d *Disk) Load(path string) (*volume.Volume, error) {
	return nifti.Read(path)
}

func (d *Disk) Save(path string, v *volume.Volume) error {
	return nifti.Write(path, v)
}

func (d *Disk) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (d *Disk) LoadTransform(path string) (resample.Transform, error) {
	return resample.Load(path)
}

// identity is the transform used by the memory backend when a path has
// no registered transform.
type identity struct{}

func (identity) ToNative(x, y, z float64) (float64, float64, float64) { return x, y, z }

// Memory is a map-backed backend for tests. Volumes and transforms are
// registered under arbitrary paths; unregistered transform paths resolve
// to the identity transform so simple fixtures need no registration.
type Memory struct {
	mu         sync.Mutex
	volumes    map[string]*volume.Volume
	transforms map[string]resample.Transform
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		volumes:    make(map[string]*volume.Volume),
		transforms: make(map[string]resample.Transform),
	}
}

// RegisterTransform associates a transform with a path.
func (m *Memory) RegisterTransform(path string, t resample.Transform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transforms[path] = t
}

func (m *Memory) Load(path string) (*volume.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[path]
	if !ok {
		return nil, fmt.Errorf("imaging: no volume stored at %s", path)
	}
	return v.Clone(), nil
}

func (m *Memory) Save(path string, v *volume.Volume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[path] = v.Clone()
	log.WithFields(log.Fields{"path": path}).Debug("imaging: volume stored in memory")
	return nil
}

func (m *Memory) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.volumes[path]
	return ok
}

func (m *Memory) LoadTransform(path string) (resample.Transform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transforms[path]; ok {
		return t, nil
	}
	return identity{}, nil
}

// Paths lists the stored volume paths in sorted order.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.volumes))
	for p := range m.volumes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
