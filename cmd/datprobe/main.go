// Command datprobe analyzes a .dat container and prints its per-offset byte
// statistics.
//
// The probe never needs a schema: it reads the raw rows, derives byte bounds
// and heap-construct evidence for every offset, and renders the result. It is
// the quickest way to see what a file of unknown layout contains before
// writing a schema for it.
//
// Output modes
//
//   - Default mode: an aligned text table, one line per byte offset, with a
//     construct flag letter (S string, A array, N nullable) on offsets where
//     a heap construct starts.
//   - JSON mode (-json): the same report as a single JSON document, for
//     scripting.
//
// The tick column wraps at 100 so the table lines up against a hex view;
// -numbering-start (or NUMBERING_START) shifts where the numbering begins.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"datview/internal/colstat"
	"datview/internal/datfile"
)

func main() {
	// A .env next to the working directory is a local-run convenience;
	// absence is the normal case.
	_ = godotenv.Load()

	var (
		filePath       string
		jsonOut        bool
		numberingStart int
	)
	flag.StringVar(&filePath, "file", "", "path of the .dat container to analyze")
	flag.BoolVar(&jsonOut, "json", false, "emit the report as JSON instead of the text table")
	flag.IntVar(&numberingStart, "numbering-start", envInt("NUMBERING_START", 0), "start of the wrapped tick numbering")
	flag.Parse()

	if filePath == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		flag.Usage()
		os.Exit(2)
	}

	f, err := datfile.Open(filePath)
	if err != nil {
		log.Fatalf("datprobe: %v", err)
	}

	r := colstat.BuildReport(f, colstat.Analyze(f))
	r.NumberingStart = numberingStart

	if jsonOut {
		out, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			log.Fatalf("datprobe: encode report: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Println(colstat.FormatReport(r))
}

// envInt reads an integer flag default from the environment. Unset or
// malformed values fall back to def; a probe should not refuse to run over a
// stray variable.
func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
