package resolve

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/loambase/loam/hlc"
)

/*
FieldMerge recursively merges two JSON bodies instead of discarding the
loser. Object fields are combined key by key with the later-written side
winning contested scalars; arrays of id-carrying objects merge by element
identity; other arrays concatenate with duplicates removed. The merge is
phrased over (older, newer) rather than (local, remote) so both replicas of
a conflicting pair compute identical output.
*/

////////////////////////////////////////////////////////////////////////////////

// FieldMerge is the recursive field-level merge resolver.
type FieldMerge struct{}

// Name implements Resolver.
func (FieldMerge) Name() string { return "field-merge" }

// Merge implements Resolver. Returns an error when either body is not valid
// JSON; callers fall back to last-write-wins in that case.
func (FieldMerge) Merge(local, remote []byte, localTS, remoteTS hlc.Timestamp) ([]byte, error) {
	older, newer := local, remote
	if localTS.After(remoteTS) {
		older, newer = remote, local
	}
	var olderVal, newerVal any
	if err := json.Unmarshal(older, &olderVal); err != nil {
		return nil, fmt.Errorf("failed to parse older body: %w", err)
	}
	if err := json.Unmarshal(newer, &newerVal); err != nil {
		return nil, fmt.Errorf("failed to parse newer body: %w", err)
	}
	merged := mergeValues(olderVal, newerVal)
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged body: %w", err)
	}
	return out, nil
}

// mergeValues merges two decoded JSON values, newer side winning contests.
func mergeValues(older, newer any) any {
	olderObj, olderIsObj := older.(map[string]any)
	newerObj, newerIsObj := newer.(map[string]any)
	if olderIsObj && newerIsObj {
		return mergeObjects(olderObj, newerObj)
	}
	olderArr, olderIsArr := older.([]any)
	newerArr, newerIsArr := newer.([]any)
	if olderIsArr && newerIsArr {
		return mergeArrays(olderArr, newerArr)
	}
	// Scalars and shape mismatches: the later write wins.
	return newer
}

func mergeObjects(older, newer map[string]any) map[string]any {
	merged := make(map[string]any, len(older)+len(newer))
	for k, v := range older {
		merged[k] = v
	}
	for k, newerVal := range newer {
		if olderVal, ok := older[k]; ok {
			merged[k] = mergeValues(olderVal, newerVal)
		} else {
			merged[k] = newerVal
		}
	}
	return merged
}

func mergeArrays(older, newer []any) []any {
	if ids, ok := identityIndex(older); ok {
		if newerIDs, ok := identityIndex(newer); ok {
			return mergeByIdentity(older, newer, ids, newerIDs)
		}
	}
	return concatDedupe(older, newer)
}

// identityIndex maps element identity to position when every element is an
// object with a stable id (or _id) field.
func identityIndex(arr []any) (map[string]int, bool) {
	index := make(map[string]int, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, false
		}
		id, ok := elementID(obj)
		if !ok {
			return nil, false
		}
		index[id] = i
	}
	return index, len(arr) > 0
}

func elementID(obj map[string]any) (string, bool) {
	for _, field := range []string{"id", "_id"} {
		if v, ok := obj[field]; ok {
			switch id := v.(type) {
			case string:
				return id, true
			case float64:
				return fmt.Sprintf("%v", id), true
			}
		}
	}
	return "", false
}

// mergeByIdentity unions two id-keyed arrays. Elements present on both sides
// merge recursively with the newer side winning; the result is ordered by id
// so every replica emits the same sequence.
func mergeByIdentity(older, newer []any, olderIDs, newerIDs map[string]int) []any {
	ids := make([]string, 0, len(olderIDs)+len(newerIDs))
	for id := range olderIDs {
		ids = append(ids, id)
	}
	for id := range newerIDs {
		if _, ok := olderIDs[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	merged := make([]any, 0, len(ids))
	for _, id := range ids {
		oi, inOlder := olderIDs[id]
		ni, inNewer := newerIDs[id]
		switch {
		case inOlder && inNewer:
			merged = append(merged, mergeValues(older[oi], newer[ni]))
		case inNewer:
			merged = append(merged, newer[ni])
		default:
			merged = append(merged, older[oi])
		}
	}
	return merged
}

// concatDedupe keeps the older side's elements in order, then appends newer
// elements not already present. Presence is judged on canonical JSON.
func concatDedupe(older, newer []any) []any {
	seen := make(map[string]bool, len(older))
	merged := make([]any, 0, len(older)+len(newer))
	for _, elem := range older {
		key := canonical(elem)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, elem)
	}
	for _, elem := range newer {
		key := canonical(elem)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, elem)
	}
	return merged
}

func canonical(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
