package discovery

// structuralDenylist holds map keys that are never merged. The raw
// definition is attacker-adjacent input (it crosses a network boundary),
// and these keys are meaningful to downstream JSON consumers.
var structuralDenylist = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// MergeObjectLists folds src into dst, matching entries by objnam and
// recursively merging matches. Entries new to dst are appended in src
// order; entries without an objnam are dropped.
//
// The merge is idempotent and order-tolerant: folding the same category
// answer twice, or folding categories in any order, converges on the
// same tree. dst is mutated and returned.
func MergeObjectLists(dst, src []any) []any {
	index := make(map[string]int, len(dst))
	for i, entry := range dst {
		if name := entryName(entry); name != "" {
			index[name] = i
		}
	}
	for _, entry := range src {
		name := entryName(entry)
		if name == "" {
			continue
		}
		if i, ok := index[name]; ok {
			dst[i] = mergeValue(dst[i], entry)
			continue
		}
		index[name] = len(dst)
		dst = append(dst, entry)
	}
	return dst
}

func entryName(entry any) string {
	m, ok := entry.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := m["objnam"].(string)
	return name
}

// mergeValue combines two values for the same key: maps merge key-wise,
// object lists merge by objnam, anything else takes the newer value.
func mergeValue(dst, src any) any {
	if dm, ok := dst.(map[string]any); ok {
		if sm, ok := src.(map[string]any); ok {
			return mergeMaps(dm, sm)
		}
	}
	if dl, ok := dst.([]any); ok {
		if sl, ok := src.([]any); ok && isObjectList(dl) && isObjectList(sl) {
			return MergeObjectLists(dl, sl)
		}
	}
	return src
}

func mergeMaps(dst, src map[string]any) map[string]any {
	for k, v := range src {
		if _, denied := structuralDenylist[k]; denied {
			continue
		}
		if existing, ok := dst[k]; ok {
			dst[k] = mergeValue(existing, v)
			continue
		}
		dst[k] = v
	}
	return dst
}

// isObjectList reports whether a slice looks like a named-object list.
// An empty slice counts, so a category that arrives first with no
// entries still merges positionally later.
func isObjectList(list []any) bool {
	for _, entry := range list {
		if entryName(entry) == "" {
			return false
		}
	}
	return true
}
