package android

import "sort"

// sortedKeys returns map keys in sorted order so emitted tool command
// lines are reproducible.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
