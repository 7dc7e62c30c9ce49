package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnvVar fixes the worker count of every pool when set to a
// positive integer. Pool limits still apply.
const OverrideEnvVar = "GALLERY_WORKERS"

// Count sizes a pool at multiplier workers per available CPU, at least one
// and at most limit (0 means no cap). GOMAXPROCS already reflects container
// CPU limits.
func Count(multiplier float64, limit int) int {
	n, ok := override()
	if !ok {
		n = max(1, int(float64(runtime.GOMAXPROCS(0))*multiplier))
	}
	if limit > 0 {
		n = min(n, limit)
	}
	return n
}

func override() (int, bool) {
	n, err := strconv.Atoi(os.Getenv(OverrideEnvVar))
	return n, err == nil && n > 0
}

// ForCPU sizes pools that decode or hash: one worker per CPU.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO sizes pools that mostly wait on disk: two workers per CPU.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed sizes pools that both read and encode, such as thumbnail
// generation: one and a half workers per CPU.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
