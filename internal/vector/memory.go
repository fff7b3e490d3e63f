package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force inner product
// search. Suitable for tests and small corpora without a Qdrant deployment.
type MemoryIndex struct {
	dimensions int
	points     []Point
	byID       map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty in-memory index. Dimensions are fixed by
// EnsureCollection or by the first upserted vector.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byID: make(map[string]int)}
}

// EnsureCollection fixes the index dimensions. Calling it again with a
// different value is a configuration mismatch.
func (m *MemoryIndex) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive: %w", models.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions == 0 {
		m.dimensions = dimensions
		return nil
	}
	if m.dimensions != dimensions {
		return fmt.Errorf("index has %d dimensions, requested %d: %w", m.dimensions, dimensions, models.ErrConfigMismatch)
	}
	return nil
}

// Upsert inserts points, replacing any existing point with the same ID in
// place so insertion order stays stable.
func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if m.dimensions == 0 {
			m.dimensions = len(p.Vector)
		}
		if len(p.Vector) != m.dimensions {
			return fmt.Errorf("vector for %q has %d dimensions, index expects %d: %w",
				p.ID, len(p.Vector), m.dimensions, models.ErrDimensionMismatch)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, p.Vector)
		p.Vector = vec
		if i, ok := m.byID[p.ID]; ok {
			m.points[i] = p
			continue
		}
		m.byID[p.ID] = len(m.points)
		m.points = append(m.points, p)
	}
	return nil
}

// Search scans all points and returns the top matches by cosine similarity.
// Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, params SearchParams) ([]models.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dimensions == 0 {
		return nil, fmt.Errorf("index is empty and has no dimensions: %w", models.ErrCollectionMissing)
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d: %w",
			len(query), m.dimensions, models.ErrDimensionMismatch)
	}
	if params.K <= 0 {
		return nil, nil
	}

	type scored struct {
		point *Point
		score float64
	}
	var candidates []scored
	for i := range m.points {
		p := &m.points[i]
		if !matchesFilter(&p.Payload, params.Filter) {
			continue
		}
		score := dotProduct(query, p.Vector)
		if score < params.ScoreThreshold {
			continue
		}
		candidates = append(candidates, scored{point: p, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if params.K < len(candidates) {
		candidates = candidates[:params.K]
	}

	results := make([]models.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = models.SearchResult{
			ID:       c.point.ID,
			Score:    c.score,
			Content:  c.point.Payload.Content,
			Source:   c.point.Payload.Source,
			Position: c.point.Payload.Position,
			Metadata: c.point.Payload.Metadata,
		}
	}
	return results, nil
}

// Delete removes points by ID.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	removeSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(func(p *Point) bool { return removeSet[p.ID] })
	return nil
}

// DeleteBySource removes all points whose payload source matches.
func (m *MemoryIndex) DeleteBySource(ctx context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(func(p *Point) bool { return p.Payload.Source == source })
	return nil
}

func (m *MemoryIndex) removeLocked(drop func(*Point) bool) {
	kept := m.points[:0]
	for i := range m.points {
		if !drop(&m.points[i]) {
			kept = append(kept, m.points[i])
		}
	}
	m.points = kept
	m.byID = make(map[string]int, len(m.points))
	for i := range m.points {
		m.byID[m.points[i].ID] = i
	}
}

// Count returns the number of stored points.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// Save persists the index to path, creating the directory if needed.
// Format: dimensions (4), count (4), then per point: idLen (4), id,
// vector (dimensions*4), payloadLen (4), payload JSON.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.points))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i := range m.points {
		p := &m.points[i]
		idBytes := []byte(p.ID)
		if err := binary.Write(f, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := f.Write(idBytes); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(p.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(len(payload))); err != nil {
			return fmt.Errorf("write payload len: %w", err)
		}
		if _, err := f.Write(payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// Load replaces the index contents from a snapshot at path. A missing file is
// not an error; existing contents are kept. A snapshot with different
// dimensions than an already-fixed index is a configuration mismatch.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()

	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions != 0 && int(dim) != m.dimensions {
		return fmt.Errorf("snapshot has %d dimensions, index expects %d: %w",
			dim, m.dimensions, models.ErrConfigMismatch)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	points := make([]Point, 0, n)
	byID := make(map[string]int, n)
	vecBuf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(f, vecBuf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		var payloadLen uint32
		if err := binary.Read(f, binary.LittleEndian, &payloadLen); err != nil {
			return fmt.Errorf("read payload len: %w", err)
		}
		payloadBytes := make([]byte, payloadLen)
		if _, err := io.ReadFull(f, payloadBytes); err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		var payload Payload
		if err := json.Unmarshal(payloadBytes, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		byID[string(idBytes)] = len(points)
		points = append(points, Point{
			ID:      string(idBytes),
			Vector:  bytesToFloat32Slice(vecBuf),
			Payload: payload,
		})
	}
	m.dimensions = int(dim)
	m.points = points
	m.byID = byID
	return nil
}

func matchesFilter(p *Payload, filter map[string]string) bool {
	for key, want := range filter {
		if p.FilterValue(key) != want {
			return false
		}
	}
	return true
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
