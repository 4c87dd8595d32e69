package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hfxdb/hfx/cmd/util"
	"github.com/hfxdb/hfx/lib/fieldstore"
)

var (
	// BenchCmd represents the bench command
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark the field store on this machine",
		Long:    "Runs an in-process benchmark of the field store: plain and expiring writes, reads, deletes, and sweep throughput.",
		RunE:    run,
		PreRunE: processBenchConfig,
	}

	benchKeySpread  = 100
	benchThreads    = 10
	benchValueSize  = 128
	benchTTLMs      = 50
	benchSkip       = make([]string, 0)
	benchFieldStore *fieldstore.Store
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common store flags
	util.SetupStoreFlags(BenchCmd)

	// add flags
	key := "skip"
	BenchCmd.PersistentFlags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	BenchCmd.PersistentFlags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "value-size"
	BenchCmd.PersistentFlags().Int(key, 128, util.WrapString("Size of the benchmark values in bytes"))
	key = "keys"
	BenchCmd.PersistentFlags().Int(key, 100, util.WrapString("How many different field names to use"))
	key = "ttl"
	BenchCmd.PersistentFlags().Int(key, 50, util.WrapString("TTL in milliseconds for the expiring-write and sweep benchmarks"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchKeySpread = viper.GetInt("keys")
	benchThreads = viper.GetInt("threads")
	benchValueSize = viper.GetInt("value-size")
	benchTTLMs = viper.GetInt("ttl")
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func shouldSkip(name string) bool {
	for _, s := range benchSkip {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

// fieldName maps a counter to one of the benchKeySpread names.
func fieldName(prefix string, counter int) string {
	return fmt.Sprintf("__bench-%s-%d", prefix, counter%benchKeySpread)
}

// benchResult bundles the throughput numbers with the latency histogram.
type benchResult struct {
	name      string
	result    testing.BenchmarkResult
	latencies gometrics.Histogram
}

// newLatencyHistogram creates the exponentially decaying sample used for
// per-operation latency percentiles.
func newLatencyHistogram() gometrics.Histogram {
	return gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015))
}

// measure runs op once and records its latency in nanoseconds.
func measure(h gometrics.Histogram, op func()) {
	start := time.Now()
	op()
	h.Update(time.Since(start).Nanoseconds())
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Field store benchmark")
	fmt.Println()
	fmt.Printf("Threads:    %d\n", benchThreads)
	fmt.Printf("Keys:       %d\n", benchKeySpread)
	fmt.Printf("Value size: %d B\n", benchValueSize)
	fmt.Println()

	benchFieldStore = fieldstore.New(util.GetStoreOptions())
	defer benchFieldStore.Close()

	value := make([]byte, benchValueSize)
	results := make([]benchResult, 0, 5)

	// ---- set ----------------------------------------------------------
	if !shouldSkip("set") {
		h := newLatencyHistogram()
		r := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(benchThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					name := fieldName("set", counter)
					measure(h, func() { benchFieldStore.Set(name, value) })
					counter++
				}
			})
		})
		results = append(results, benchResult{"set", r, h})
		printResult(results[len(results)-1])
	}

	// ---- set-ttl ------------------------------------------------------
	if !shouldSkip("set-ttl") {
		h := newLatencyHistogram()
		ttl := time.Duration(benchTTLMs) * time.Millisecond
		r := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(benchThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					name := fieldName("set-ttl", counter)
					measure(h, func() { benchFieldStore.SetEx(name, value, ttl) })
					counter++
				}
			})
		})
		results = append(results, benchResult{"set-ttl", r, h})
		printResult(results[len(results)-1])
	}

	// ---- get ----------------------------------------------------------
	if !shouldSkip("get") {
		for i := 0; i < benchKeySpread; i++ {
			benchFieldStore.Set(fieldName("get", i), value)
		}
		h := newLatencyHistogram()
		var misses atomic.Int64
		r := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(benchThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					name := fieldName("get", counter)
					measure(h, func() {
						if _, ok := benchFieldStore.Get(name); !ok {
							misses.Add(1)
						}
					})
					counter++
				}
			})
		})
		if misses.Load() > 0 {
			fmt.Printf("(get) - %d unexpected misses\n", misses.Load())
		}
		results = append(results, benchResult{"get", r, h})
		printResult(results[len(results)-1])
	}

	// ---- delete -------------------------------------------------------
	if !shouldSkip("delete") {
		h := newLatencyHistogram()
		r := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(benchThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					name := fieldName("delete", counter)
					benchFieldStore.Set(name, value)
					measure(h, func() { benchFieldStore.Delete(name) })
					counter++
				}
			})
		})
		results = append(results, benchResult{"delete", r, h})
		printResult(results[len(results)-1])
	}

	// ---- sweep --------------------------------------------------------
	if !shouldSkip("sweep") {
		if err := runSweepBench(value); err != nil {
			return err
		}
	}

	// Optionally write results as CSV
	if path := viper.GetString("csv"); path != "" {
		if err := writeCSV(path, results); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
		fmt.Printf("results written to %s\n", path)
	}

	return nil
}

// runSweepBench loads expiring fields and measures how long the sweepers
// need to reclaim them all.
func runSweepBench(value []byte) error {
	const count = 10_000
	ttl := time.Duration(benchTTLMs) * time.Millisecond

	for i := 0; i < count; i++ {
		benchFieldStore.SetEx(fmt.Sprintf("__bench-sweep-%d", i), value, ttl)
	}
	baseline := benchFieldStore.Len() - count

	start := time.Now()
	deadline := start.Add(2 * time.Minute)
	for benchFieldStore.Len() > baseline {
		if time.Now().After(deadline) {
			return fmt.Errorf("sweep benchmark timed out with %d fields left", benchFieldStore.Len()-baseline)
		}
		time.Sleep(time.Millisecond)
	}
	elapsed := time.Since(start)

	fmt.Printf("%-10s %d expired fields reclaimed in %v (%.0f fields/s)\n",
		"sweep", count, elapsed.Round(time.Millisecond),
		float64(count)/elapsed.Seconds())
	return nil
}

func printResult(r benchResult) {
	ps := r.latencies.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-10s %10d ops %12.0f ns/op   p50 %8.0f ns   p95 %8.0f ns   p99 %8.0f ns\n",
		r.name, r.result.N, float64(r.result.T.Nanoseconds())/float64(r.result.N),
		ps[0], ps[1], ps[2])
}

func writeCSV(path string, results []benchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"benchmark", "ops", "ns_per_op", "p50_ns", "p95_ns", "p99_ns"}); err != nil {
		return err
	}
	for _, r := range results {
		ps := r.latencies.Percentiles([]float64{0.5, 0.95, 0.99})
		row := []string{
			r.name,
			strconv.Itoa(r.result.N),
			strconv.FormatFloat(float64(r.result.T.Nanoseconds())/float64(r.result.N), 'f', 0, 64),
			strconv.FormatFloat(ps[0], 'f', 0, 64),
			strconv.FormatFloat(ps[1], 'f', 0, 64),
			strconv.FormatFloat(ps[2], 'f', 0, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
