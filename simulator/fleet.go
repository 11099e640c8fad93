package main

import "fmt"

// GenerateIDs returns count charge point identifiers prefix0001..prefixNNNN.
func GenerateIDs(prefix string, count int) []string {
	if count <= 0 {
		return nil
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%04d", prefix, i+1)
	}
	return ids
}
