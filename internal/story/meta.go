package story

// Meta holds the structured attributes of a story as decoded from JSON.
// Nested values are maps, slices, strings, numbers, bools, or nil.
type Meta map[string]any

// Archive bookkeeping fields stored under the "archive" sub-map.
const (
	ArchiveKey  = "archive"
	DateChecked = "date_checked"
	DateCreated = "date_created"
	DateFetched = "date_fetched"
	DateUpdated = "date_updated"
	PathKey     = "path"
)

// Clone returns a deep copy of the meta. Callers receive their own copy
// so index-backed meta can never be mutated through a story.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	return deepCopyMap(m)
}

func deepCopyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case Meta:
		return Meta(deepCopyMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// Int reads an integer attribute. JSON decoding produces float64 and
// msgpack decoding may produce any integer width, so all are accepted.
func (m Meta) Int(key string) (int64, bool) {
	return asInt64(m[key])
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float32:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

// String reads a string attribute.
func (m Meta) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Sub reads a nested map attribute.
func (m Meta) Sub(key string) (Meta, bool) {
	switch t := m[key].(type) {
	case map[string]any:
		return Meta(t), true
	case Meta:
		return t, true
	default:
		return nil, false
	}
}

// Chapters returns the chapter list, or nil if absent.
func (m Meta) Chapters() []any {
	chapters, _ := m["chapters"].([]any)
	return chapters
}

// Archive returns the archive bookkeeping sub-map, creating it if missing.
func (m Meta) Archive() Meta {
	if sub, ok := m.Sub(ArchiveKey); ok {
		return sub
	}
	sub := Meta{}
	m[ArchiveKey] = map[string]any(sub)
	return sub
}

// HasArchive reports whether the meta carries archive bookkeeping.
func (m Meta) HasArchive() bool {
	_, ok := m[ArchiveKey]
	return ok
}

// ArchivePath resolves the payload path for an index entry. Current
// archives store it under archive.path; older releases used a top-level
// path field.
func (m Meta) ArchivePath() (string, bool) {
	if sub, ok := m.Sub(ArchiveKey); ok {
		if path, ok := sub.String(PathKey); ok && path != "" {
			return path, true
		}
	}
	if path, ok := m.String(PathKey); ok && path != "" {
		return path, true
	}
	return "", false
}

// LatestModified returns the most recent modification timestamp of the
// story or any of its chapters. The second return value is false when no
// timestamp is present at all.
func LatestModified(m Meta) (int64, bool) {
	latest, found := m.Int("date_modified")

	for _, raw := range m.Chapters() {
		chapter, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		modified, ok := Meta(chapter).Int("date_modified")
		if !ok {
			continue
		}
		if !found || modified > latest {
			latest = modified
			found = true
		}
	}

	return latest, found
}
