// mxg-query is the command-line client for mxg: given a list of genomic
// intervals or a bin size, and one or more methylome sample names, it
// prints per-range (meth, unmeth[, covered]) totals, either by reading a
// local index/methylome directory directly or by querying a remote
// mxg-server.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/andrewdavidsmith/mxg/client"
	"github.com/andrewdavidsmith/mxg/genome"
	"github.com/andrewdavidsmith/mxg/query"
)

var (
	server        = flag.String("server", "", "Remote mxg-server address (host:port); if empty, query -index-dir/-methylome-dir directly")
	indexDir      = flag.String("index-dir", "", "Directory holding the genome index (required)")
	assembly      = flag.String("assembly", "", "Assembly name to load from -index-dir (required)")
	methylomeDir  = flag.String("methylome-dir", "", "Directory holding methylome data/metadata files (local mode only)")
	cacheCapacity = flag.Uint("cache-capacity", 16, "Local-mode cache capacity")
	names         = flag.String("methylomes", "", "Comma-separated methylome sample names (required)")
	intervalsPath = flag.String("intervals", "", "BED-style file of chrom\\tstart\\tstop intervals; mutually exclusive with -bin-size")
	binSize       = flag.Uint("bin-size", 0, "Fixed bin size in bp; mutually exclusive with -intervals")
	covered       = flag.Bool("covered", false, "Request the covered variant (adds an n_covered column)")
	timeout       = flag.Duration("timeout", 10*time.Second, "Remote-mode dial/round-trip timeout")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if *indexDir == "" || *assembly == "" || *names == "" {
		log.Fatalf("mxg-query: -index-dir, -assembly, and -methylomes are required")
	}
	if (*intervalsPath == "") == (*binSize == 0) {
		log.Fatalf("mxg-query: exactly one of -intervals or -bin-size must be given")
	}

	idx, err := genome.Read(*indexDir, *assembly)
	if err != nil {
		log.Fatalf("mxg-query: loading index: %v", err)
	}

	sampleNames := splitNonEmpty(*names, ",")
	variant := query.Uncovered
	if *covered {
		variant = query.Covered
	}

	var results [][]query.Aggregate
	if *server != "" {
		results, err = queryRemote(idx, sampleNames, variant)
	} else {
		results, err = queryLocal(idx, sampleNames, variant)
	}
	if err != nil {
		log.Fatalf("mxg-query: %v", err)
	}

	printResults(sampleNames, results, *covered)
}

func queryLocal(idx genome.Index, sampleNames []string, variant query.Variant) ([][]query.Aggregate, error) {
	if *methylomeDir == "" {
		log.Fatalf("mxg-query: -methylome-dir is required in local mode")
	}
	c := client.NewLocal(&idx, *methylomeDir, uint32(*cacheCapacity))
	if *binSize != 0 {
		return c.QueryBins(sampleNames, uint32(*binSize), variant)
	}
	intervals, err := readIntervals(*intervalsPath, &idx)
	if err != nil {
		return nil, err
	}
	return c.QueryIntervals(sampleNames, intervals, variant)
}

func queryRemote(idx genome.Index, sampleNames []string, variant query.Variant) ([][]query.Aggregate, error) {
	c := client.NewRemote(*server, *timeout)
	if *binSize != 0 {
		return c.QueryBins(idx.IndexHash, sampleNames, uint32(*binSize), variant)
	}
	intervals, err := readIntervals(*intervalsPath, &idx)
	if err != nil {
		return nil, err
	}
	q, err := idx.MakeQuery(intervals)
	if err != nil {
		return nil, err
	}
	return c.QueryIntervals(idx.IndexHash, sampleNames, q.Ranges, variant)
}

func readIntervals(path string, idx *genome.Index) (intervals []genome.Interval, err error) {
	ctx := backgroundcontext.Get()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, f, &err)

	chromIDs := idx.ChromIDMap()

	scanner := bufio.NewScanner(f.Reader(ctx))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("malformed interval line: %q", line)
		}
		chrom, ok := chromIDs[fields[0]]
		if !ok {
			return nil, fmt.Errorf("unknown chromosome %q", fields[0])
		}
		start, perr := strconv.ParseUint(fields[1], 10, 32)
		if perr != nil {
			return nil, fmt.Errorf("malformed interval start: %q", line)
		}
		stop, perr := strconv.ParseUint(fields[2], 10, 32)
		if perr != nil {
			return nil, fmt.Errorf("malformed interval stop: %q", line)
		}
		intervals = append(intervals, genome.Interval{Chrom: chrom, Start: uint32(start), Stop: uint32(stop)})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return intervals, nil
}

func printResults(sampleNames []string, results [][]query.Aggregate, covered bool) {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for i, name := range sampleNames {
		for _, agg := range results[i] {
			if covered {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", name, agg.M, agg.U, agg.NCovered)
			} else {
				fmt.Fprintf(w, "%s\t%d\t%d\n", name, agg.M, agg.U)
			}
		}
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
