// Package profiling captures CPU, heap, and execution-trace profiles
// for diagnosing indexing performance.
package profiling

import (
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/codescope/codescope/internal/errors"
)

// StartCPU begins CPU profiling into path. The returned stop function
// flushes and closes the file.
func StartCPU(path string) (stop func(), err error) {
	const op = "profiling.StartCPU"

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindPermission, op, err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, errors.Internal(op, err)
	}
	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}

// StartTrace begins execution tracing into path. The returned stop
// function flushes and closes the file.
func StartTrace(path string) (stop func(), err error) {
	const op = "profiling.StartTrace"

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindPermission, op, err)
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, errors.Internal(op, err)
	}
	return func() {
		trace.Stop()
		_ = f.Close()
	}, nil
}

// WriteHeap writes a point-in-time heap profile to path. A GC runs
// first so the snapshot reflects live objects.
func WriteHeap(path string) error {
	const op = "profiling.WriteHeap"

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.KindPermission, op, err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return errors.Internal(op, err)
	}
	return nil
}
