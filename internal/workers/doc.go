/*
Package workers sizes worker pools from GOMAXPROCS.

runtime.NumCPU reports the host's CPUs even when a container or cgroup limits
the process to fewer. GOMAXPROCS follows those limits, so every count here is
derived from it:

	lookups := workers.ForIO(32)     // stat and cache reads, 2 per CPU
	renders := workers.Resolve(0, 0) // decode and resize, at least MinRender

Resolve gives an explicit setting precedence over the THUMBNAIL_WORKERS
environment variable, and the variable precedence over the derived count.
*/
package workers
