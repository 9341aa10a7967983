package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	listSegment  = "list"
	statsSegment = "stats"

	// ListPattern matches every parameterized collection key in a namespace.
	ListPattern = listSegment + ":*"
	// StatsPattern matches every aggregate key in a namespace.
	StatsPattern = statsSegment + ":*"
)

// Key joins a namespace and a key: "<namespace>:<key>".
func Key(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// EntityKey builds "<entity-kind>:<id>[:<viewer-scope>]".
func EntityKey(kind, id string, scope ...string) string {
	parts := append([]string{kind, id}, scope...)
	return strings.Join(parts, ":")
}

// ListKey builds "list:<filter-fingerprint>".
func ListKey(filters any) string {
	return listSegment + ":" + Fingerprint(filters)
}

// StatsKey builds "stats:<scope>".
func StatsKey(scope string) string {
	return statsSegment + ":" + scope
}

// Fingerprint hashes a filter combination into a short stable token.
// Map keys are sorted by encoding/json, so equal filters give equal fingerprints.
func Fingerprint(filters any) string {
	b, err := json.Marshal(filters)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", filters))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
