package guildconfig

// Merge returns base overlaid with patch. Nested objects merge key by key,
// while arrays and scalars from patch replace what base holds. Neither input
// is modified.
func Merge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range patch {
		patchObj, patchIsObj := value.(map[string]any)
		baseObj, baseIsObj := out[key].(map[string]any)
		if patchIsObj && baseIsObj {
			out[key] = Merge(baseObj, patchObj)
			continue
		}
		out[key] = value
	}
	return out
}
