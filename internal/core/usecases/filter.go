package usecases

import "strings"

// FilterRecords keeps records whose category equals category (when set) and whose
// name contains searchText case-insensitively (when non-empty). Order is preserved.
// Accents are compared as-is: "farmacia" does not match "Fármacia".
func FilterRecords[R Record](records []R, category, searchText string) []R {
	if len(records) == 0 {
		return []R{}
	}

	needle := strings.ToLower(searchText)
	out := make([]R, 0, len(records))
	for _, r := range records {
		if category != "" && r.CategoryTag() != category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.DisplayName()), needle) {
			continue
		}
		out = append(out, r)
	}
	return out
}
