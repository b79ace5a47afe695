package delta

import (
	"sort"

	"github.com/ferro-labs/gateway-core/providers"
)

// comparator reports the differences of one field group between two
// versions of the same model.
type comparator func(old, cur providers.ModelInfo) []FieldChange

// comparators run in order; each covers one tracked field group.
var comparators = []comparator{
	compareName,
	compareDescription,
	compareCapabilities,
	compareParameters,
	compareMetrics,
	compareTags,
	compareAPI,
}

func compareModels(old, cur providers.ModelInfo) []FieldChange {
	var changes []FieldChange
	for _, cmp := range comparators {
		changes = append(changes, cmp(old, cur)...)
	}
	return changes
}

func compareName(old, cur providers.ModelInfo) []FieldChange {
	if old.Name == cur.Name {
		return nil
	}
	return []FieldChange{{Field: "name", Type: MetadataUpdate, Old: old.Name, New: cur.Name}}
}

func compareDescription(old, cur providers.ModelInfo) []FieldChange {
	if old.Description == cur.Description {
		return nil
	}
	return []FieldChange{{Field: "description", Type: MetadataUpdate, Old: old.Description, New: cur.Description}}
}

func compareCapabilities(old, cur providers.ModelInfo) []FieldChange {
	added, removed := setDiff(old.Capabilities, cur.Capabilities)
	var typ ModificationType
	switch {
	case len(added) > 0 && len(removed) > 0:
		typ = CapabilitiesChanged
	case len(added) > 0:
		typ = CapabilitiesAdded
	case len(removed) > 0:
		typ = CapabilitiesRemoved
	default:
		return nil
	}
	return []FieldChange{{Field: "capabilities", Type: typ, Old: removed, New: added}}
}

func compareTags(old, cur providers.ModelInfo) []FieldChange {
	added, removed := setDiff(old.Tags, cur.Tags)
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	return []FieldChange{{Field: "tags", Type: MetadataUpdate, Old: removed, New: added}}
}

func compareParameters(old, cur providers.ModelInfo) []FieldChange {
	var changes []FieldChange
	for _, k := range unionKeys(old.Parameters, cur.Parameters) {
		ov, oldOK := old.Parameters[k]
		nv, curOK := cur.Parameters[k]
		if oldOK == curOK && ov == nv {
			continue
		}
		changes = append(changes, FieldChange{Field: "parameters." + k, Type: FieldUpdate, Old: ov, New: nv})
	}
	return changes
}

func compareMetrics(old, cur providers.ModelInfo) []FieldChange {
	var changes []FieldChange
	for _, k := range unionKeys(old.Metrics, cur.Metrics) {
		ov, oldOK := old.Metrics[k]
		nv, curOK := cur.Metrics[k]
		if oldOK == curOK && ov == nv {
			continue
		}
		changes = append(changes, FieldChange{Field: "metrics." + k, Type: FieldUpdate, Old: ov, New: nv})
	}
	return changes
}

func compareAPI(old, cur providers.ModelInfo) []FieldChange {
	if old.API == cur.API {
		return nil
	}
	return []FieldChange{{Field: "api", Type: APIConfigUpdate, Old: old.API, New: cur.API}}
}

// setDiff compares two string slices as sets and returns sorted results.
func setDiff(old, cur []string) (added, removed []string) {
	oldSet := make(map[string]struct{}, len(old))
	for _, v := range old {
		oldSet[v] = struct{}{}
	}
	curSet := make(map[string]struct{}, len(cur))
	for _, v := range cur {
		curSet[v] = struct{}{}
		if _, ok := oldSet[v]; !ok {
			added = append(added, v)
		}
	}
	for v := range oldSet {
		if _, ok := curSet[v]; !ok {
			removed = append(removed, v)
		}
	}
	added = dedupSorted(added)
	sort.Strings(removed)
	return added, removed
}

func dedupSorted(s []string) []string {
	sort.Strings(s)
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func unionKeys[V any](a, b map[string]V) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
