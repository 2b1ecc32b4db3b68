package synth

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// Canonical returns the canonical encoding of a workload configuration.
// Struct fields encode in declaration order and every slice is sorted by
// Synthesize, so equal configurations encode to equal bytes.
func Canonical(wc types.WorkloadConfig) []byte {
	data, err := json.Marshal(wc)
	if err != nil {
		// WorkloadConfig holds only strings, numbers, bools and times
		panic(fmt.Sprintf("encode workload config: %v", err))
	}
	return data
}

// Hash identifies a workload configuration including its version
func Hash(wc types.WorkloadConfig) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(Canonical(wc)))
}

// ContentHash identifies a workload configuration ignoring its version.
// The leader bumps the version only when the content hash changes.
func ContentHash(wc types.WorkloadConfig) string {
	wc.Version = 0
	return Hash(wc)
}
