// Package memory sizes the Go heap for containers and applies backpressure
// to image work.
//
// Unlike GOMAXPROCS, GOMEMLIMIT is not derived from cgroup limits. Call
// [ConfigureLimit] with the container limit from configuration before the
// library is loaded:
//
//	memory.ConfigureLimit("2GiB", 0.85)
//
// An explicit GOMEMLIMIT environment variable takes precedence.
//
// # Monitor
//
// Decoding covers allocates full-size bitmaps, so thumbnail workers call
// [Monitor.Wait] before each decode. The monitor pauses work once heap usage
// reaches the critical water mark and resumes it below the high water mark:
//
//	monitor := memory.NewMonitor(memory.DefaultMonitorConfig())
//	monitor.Start(ctx)
//	thumbs.SetMonitor(monitor)
package memory
