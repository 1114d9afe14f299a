package worker

import "hash/fnv"

// Partition maps a subject key onto one of n partitions.
func Partition(subjectKey string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(subjectKey))
	return int(h.Sum32() % uint32(n))
}
