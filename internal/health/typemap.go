package health

// TypeMap maps vendor record type identifiers to canonical metric types.
// A TypeMap is immutable once built; the zero value recognizes nothing.
type TypeMap struct {
	entries map[string]MetricType
}

// NewTypeMap builds a TypeMap from a copy of entries
func NewTypeMap(entries map[string]MetricType) TypeMap {
	copied := make(map[string]MetricType, len(entries))
	for vendor, canonical := range entries {
		copied[vendor] = canonical
	}
	return TypeMap{entries: copied}
}

// DefaultTypeMap returns the identifiers found in an Apple Health export
func DefaultTypeMap() TypeMap {
	return NewTypeMap(map[string]MetricType{
		"HKQuantityTypeIdentifierBodyMass":  BodyMass,
		"HKQuantityTypeIdentifierHeartRate": HeartRate,
		"HKQuantityTypeIdentifierStepCount": Steps,
	})
}

// Lookup returns the canonical type for a vendor identifier
func (m TypeMap) Lookup(vendor string) (MetricType, bool) {
	canonical, ok := m.entries[vendor]
	return canonical, ok
}

// Len returns the number of recognized vendor identifiers
func (m TypeMap) Len() int {
	return len(m.entries)
}
