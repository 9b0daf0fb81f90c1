// Command plot renders a tabular summary of a baseline ResultRecord or a
// grid CSV to stdout. It does not render charts; the protocol description
// leaves chart rendering out of scope, but a human-readable summary of a
// run's output is useful on its own, mirroring the teacher's getrt/getstore
// console commands that render structured results as plain text tables.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"

	"dhtsim/internal/metrics"
)

func main() {
	resultsPath := flag.String("results", "", "path to a baseline ResultRecord JSON file")
	gridPath := flag.String("grid", "", "path to a grid summary CSV file")
	flag.Parse()

	if *resultsPath == "" && *gridPath == "" {
		log.Fatal("one of --results or --grid is required")
	}
	if *resultsPath != "" {
		printResultRecord(*resultsPath)
	}
	if *gridPath != "" {
		printGridCSV(*gridPath)
	}
}

func printResultRecord(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("cannot read %q: %v", path, err)
	}
	var rec metrics.ResultRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Fatalf("cannot parse %q: %v", path, err)
	}

	fmt.Printf("params: n=%d inserts=%d lookups=%d updates=%d deletes=%d join_leave=%d k=%d seed=%d\n",
		rec.Params.N, rec.Params.Inserts, rec.Params.Lookups, rec.Params.Updates,
		rec.Params.Deletes, rec.Params.JoinLeave, rec.Params.K, rec.Params.Seed)

	fmt.Println()
	printProtocolTable("chord", rec.Chord)
	fmt.Println()
	printProtocolTable("pastry", rec.Pastry)

	if len(rec.Errors) > 0 {
		fmt.Println()
		fmt.Println("errors:")
		keys := make([]string, 0, len(rec.Errors))
		for k := range rec.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-24s %d\n", k, rec.Errors[k])
		}
	}
}

func printProtocolTable(name string, stats map[string]metrics.StatsView) {
	fmt.Printf("%s:\n", name)
	fmt.Printf("  %-8s %8s %10s %10s %10s\n", "op", "count", "mean", "median", "p95")
	for _, class := range metrics.OpClassOrder {
		s, ok := stats[class]
		if !ok || s.Count == 0 {
			fmt.Printf("  %-8s %8d %10s %10s %10s\n", class, 0, "-", "-", "-")
			continue
		}
		fmt.Printf("  %-8s %8d %10s %10s %10s\n", class, s.Count,
			formatPtr(s.Mean), formatPtr(s.Median), formatPtr(s.P95))
	}
}

func formatPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func printGridCSV(path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("cannot open %q: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		log.Fatalf("cannot parse %q: %v", path, err)
	}
	if len(rows) == 0 {
		fmt.Println("(empty grid file)")
		return
	}

	fmt.Println()
	for _, row := range rows {
		fmt.Println(formatRow(row))
	}
}

func formatRow(row []string) string {
	out := ""
	for i, cell := range row {
		if i > 0 {
			out += "  "
		}
		out += fmt.Sprintf("%-10s", cell)
	}
	return out
}
