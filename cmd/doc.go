// Package cmd implements the command-line interface for hfx. It provides a
// hierarchical command structure for inspecting and exercising the field
// store.
//
// The package is organized into several subpackages:
//
//   - bench: In-process benchmarks for the field store (writes, reads,
//     deletes, sweep throughput)
//   - util: Shared utilities for command-line processing and configuration
//     (internal use)
//
// See hfx -help for a list of all commands.
package cmd
