package config

// Merge deep-merges src into m. Mappings present on both sides merge key
// by key; any other pair is replaced by a deep copy of the src value.
// Sequences are never concatenated and there is no delete marker.
func (m *Map) Merge(src *Map) {
	src.Each(func(key string, value any) {
		if srcMap, ok := value.(*Map); ok {
			if existing, found := m.om.Get(key); found {
				if dstMap, ok := existing.(*Map); ok {
					dstMap.Merge(srcMap)
					return
				}
			}
		}
		m.om.Set(key, deepCopy(value))
	})
}
