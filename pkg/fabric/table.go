package fabric

import (
	"errors"
	"fmt"
	"sync"
)

// Table errors.
var (
	ErrTableFull        = errors.New("fabric: table full")
	ErrFabricNotFound   = errors.New("fabric: not found")
	ErrFabricConflict   = errors.New("fabric: fabric already exists with same root key and fabric ID")
	ErrLabelConflict    = errors.New("fabric: label already in use")
	ErrFabricIndexInUse = errors.New("fabric: fabric index already in use")
)

// TableConfig configures the fabric table.
type TableConfig struct {
	// MaxFabrics is the maximum number of fabrics supported (SupportedFabrics
	// attribute). Valid range: 5-254.
	MaxFabrics uint8
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{MaxFabrics: DefaultSupportedFabrics}
}

// Table is the thread-safe store of every fabric a node is commissioned
// into, backing the Operational Credentials Cluster attributes.
type Table struct {
	mu      sync.RWMutex
	fabrics map[FabricIndex]*FabricInfo
	config  TableConfig
}

// NewTable creates a new fabric table, clamping MaxFabrics into range.
func NewTable(config TableConfig) *Table {
	switch {
	case config.MaxFabrics < MinSupportedFabrics:
		config.MaxFabrics = MinSupportedFabrics
	case config.MaxFabrics > MaxSupportedFabrics:
		config.MaxFabrics = MaxSupportedFabrics
	}
	return &Table{fabrics: make(map[FabricIndex]*FabricInfo), config: config}
}

// Add adds a new fabric to the table.
func (t *Table) Add(info *FabricInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.fabrics) >= int(t.config.MaxFabrics) {
		return ErrTableFull
	}
	if _, exists := t.fabrics[info.FabricIndex]; exists {
		return ErrFabricIndexInUse
	}
	for _, existing := range t.fabrics {
		if existing.MatchesRootPublicKey(info.RootPublicKey) && existing.FabricID == info.FabricID {
			return ErrFabricConflict
		}
	}

	t.fabrics[info.FabricIndex] = info.Clone()
	return nil
}

// Remove removes a fabric from the table by index.
func (t *Table) Remove(index FabricIndex) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.fabrics[index]; !exists {
		return ErrFabricNotFound
	}
	delete(t.fabrics, index)
	return nil
}

// Get returns a clone of the fabric at index, or (nil, false) if absent.
func (t *Table) Get(index FabricIndex) (*FabricInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.fabrics[index]
	if !exists {
		return nil, false
	}
	return info.Clone(), true
}

// Update atomically mutates the fabric at index through fn.
func (t *Table) Update(index FabricIndex, fn func(*FabricInfo) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.fabrics[index]
	if !exists {
		return ErrFabricNotFound
	}
	return fn(info)
}

// findLocked scans the table under an already-held read lock, returning a
// clone of the first fabric matching predicate. FindByRootPublicKey,
// FindByCompressedFabricID, FindByFabricID and FindByRootAndFabricID are
// all this one scan parametrized by what "match" means.
func (t *Table) findLocked(match func(*FabricInfo) bool) (*FabricInfo, bool) {
	for _, info := range t.fabrics {
		if match(info) {
			return info.Clone(), true
		}
	}
	return nil, false
}

// FindByRootPublicKey returns the fabric with the given root public key.
func (t *Table) FindByRootPublicKey(rootPubKey [RootPublicKeySize]byte) (*FabricInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findLocked(func(info *FabricInfo) bool {
		return info.MatchesRootPublicKey(rootPubKey)
	})
}

// FindByCompressedFabricID returns the fabric with the given compressed fabric ID.
func (t *Table) FindByCompressedFabricID(cfid [CompressedFabricIDSize]byte) (*FabricInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findLocked(func(info *FabricInfo) bool {
		return info.MatchesCompressedFabricID(cfid)
	})
}

// FindByFabricID returns the first fabric with the given fabric ID.
//
// Multiple fabrics could theoretically share a fabric ID with different
// root CAs; this returns the first match.
func (t *Table) FindByFabricID(fabricID FabricID) (*FabricInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findLocked(func(info *FabricInfo) bool {
		return info.FabricID == fabricID
	})
}

// FindByRootAndFabricID returns the fabric matching both root public key
// and fabric ID, the full "fabric reference" lookup.
func (t *Table) FindByRootAndFabricID(rootPubKey [RootPublicKeySize]byte, fabricID FabricID) (*FabricInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findLocked(func(info *FabricInfo) bool {
		return info.MatchesRootPublicKey(rootPubKey) && info.FabricID == fabricID
	})
}

// List returns clones of every fabric in the table.
func (t *Table) List() []*FabricInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*FabricInfo, 0, len(t.fabrics))
	for _, info := range t.fabrics {
		result = append(result, info.Clone())
	}
	return result
}

// Count returns the number of fabrics in the table.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.fabrics)
}

// SupportedFabrics returns the maximum number of supported fabrics.
func (t *Table) SupportedFabrics() uint8 {
	return t.config.MaxFabrics
}

// CommissionedFabrics returns the current number of commissioned fabrics.
func (t *Table) CommissionedFabrics() uint8 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint8(len(t.fabrics))
}

// AllocateFabricIndex returns the first unused index in [FabricIndexMin,
// FabricIndexMax], or ErrTableFull if the table is at capacity or exhausted.
func (t *Table) AllocateFabricIndex() (FabricIndex, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.fabrics) >= int(t.config.MaxFabrics) {
		return FabricIndexInvalid, ErrTableFull
	}
	for idx := FabricIndexMin; idx <= FabricIndexMax; idx++ {
		if _, exists := t.fabrics[idx]; !exists {
			return idx, nil
		}
	}
	return FabricIndexInvalid, ErrTableFull
}

// IsFabricIndexInUse returns true if the fabric index is currently in use.
func (t *Table) IsFabricIndexInUse(index FabricIndex) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.fabrics[index]
	return exists
}

// UpdateLabel updates the label for a fabric, enforcing uniqueness.
func (t *Table) UpdateLabel(index FabricIndex, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.fabrics[index]
	if !exists {
		return ErrFabricNotFound
	}
	if label != "" {
		for idx, other := range t.fabrics {
			if idx != index && other.Label == label {
				return ErrLabelConflict
			}
		}
	}
	return info.SetLabel(label)
}

// IsLabelInUse returns true if label is used by any fabric other than excludeIndex.
func (t *Table) IsLabelInUse(label string, excludeIndex FabricIndex) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if label == "" {
		return false
	}
	for idx, info := range t.fabrics {
		if idx != excludeIndex && info.Label == label {
			return true
		}
	}
	return false
}

// GetNOCsList returns the NOCs attribute value.
func (t *Table) GetNOCsList() []NOCStruct {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]NOCStruct, 0, len(t.fabrics))
	for _, info := range t.fabrics {
		result = append(result, info.GetNOCStruct())
	}
	return result
}

// GetFabricsList returns the Fabrics attribute value.
func (t *Table) GetFabricsList() []FabricDescriptorStruct {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]FabricDescriptorStruct, 0, len(t.fabrics))
	for _, info := range t.fabrics {
		result = append(result, info.GetFabricDescriptor())
	}
	return result
}

// GetTrustedRootCertificates returns the TrustedRootCertificates attribute value.
func (t *Table) GetTrustedRootCertificates() [][]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([][]byte, 0, len(t.fabrics))
	for _, info := range t.fabrics {
		cert := make([]byte, len(info.RootCert))
		copy(cert, info.RootCert)
		result = append(result, cert)
	}
	return result
}

// Clear removes all fabrics from the table (factory reset).
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fabrics = make(map[FabricIndex]*FabricInfo)
}

// ForEach calls fn with a read-only view of each fabric, stopping and
// returning fn's error if it returns non-nil. Use Update to modify a fabric.
func (t *Table) ForEach(fn func(*FabricInfo) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, info := range t.fabrics {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// String returns a summary of the fabric table.
func (t *Table) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("FabricTable{Count=%d, Max=%d}", len(t.fabrics), t.config.MaxFabrics)
}
