// Package benchmark provides performance benchmarks for restore points.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Compare backends:
//
//	go test -bench=BenchmarkCreate -benchmem -count=5 ./internal/tests/benchmark/... | tee bench.txt
//	benchstat old.txt new.txt
package benchmark
