// LI-600 stomatal conductance correction tool
package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/hhkbp2/go-logging"
	"github.com/plantphys/li600-correction-go/li600"
)

func main() {
	log.SetFlags(log.Lmicroseconds)

	parser := argparse.NewParser("li600-correction",
		"Applies the Rizzo & Bailey (2025) correction of chamber air temperature and stomatal conductance to a CSV file exported from an LI-600")

	input := parser.StringPositional(&argparse.Options{
		Help: "Path to the CSV file exported from the LI-600"})

	output := parser.String("o", "output", &argparse.Options{
		Default: "",
		Help:    "Path of the corrected CSV (default: <input>_corrected.csv, \"-\" for stdout)"})

	sidedness := parser.Float("", "stomatal_sidedness", &argparse.Options{
		Default: 1.0,
		Help:    "1 if hypostomatous, 2 if amphistomatous, or anywhere in between"})

	conductance := parser.Float("", "thermal_conductance", &argparse.Options{
		Default: 0.007,
		Help:    "Instrument thermal conductance C (J/s/C)"})

	model := parser.Selector("", "model", []string{li600.ModelFull, li600.ModelReduced}, &argparse.Options{
		Default: li600.ModelFull,
		Help:    "Correction model: full 3-equation solve, or the legacy reduced energy balance"})

	paramFile := parser.String("c", "config", &argparse.Options{
		Default: "",
		Help:    "YAML file with correction parameters (takes precedence over the parameter flags)"})

	parallel := parser.Flag("", "parallel", &argparse.Options{
		Help: "Solve rows on parallel goroutines (output order is unchanged)"})

	logLevel := parser.Selector("", "log", []string{"debug", "info", "warn", "error"}, &argparse.Options{
		Default: "warn",
		Help:    "Log level of the per-row solver diagnostics"})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if *input == "" {
		fmt.Print(parser.Usage("input CSV path is required"))
		os.Exit(1)
	}

	logger := logging.GetLogger("li600")
	switch *logLevel {
	case "debug":
		logger.SetLevel(logging.LevelDebug)
	case "info":
		logger.SetLevel(logging.LevelInfo)
	case "warn":
		logger.SetLevel(logging.LevelWarn)
	case "error":
		logger.SetLevel(logging.LevelError)
	}

	params := li600.DefaultParams()
	params.StomatalSidedness = *sidedness
	params.ThermalConductance = *conductance
	params.Model = *model
	if *paramFile != "" {
		params, err = li600.LoadParams(*paramFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	f, err := os.Open(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	data, err := li600.ReadLi600CSV(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", *input, err)
		os.Exit(1)
	}

	summary, err := li600.Correct(data, params, *parallel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Printf("corrected %d rows (%d fallback, mean correction %.6f mol/m2/s)",
		summary.Rows, summary.FallbackRows, summary.MeanCorrection)
	if summary.FallbackRows > 0 {
		log.Printf("warning: %d of %d rows were zeroed by the fallback policy", summary.FallbackRows, summary.Rows)
	}

	buf := bytes.NewBuffer([]byte{})
	data.ToCSV(buf)

	out := *output
	if out == "" {
		out = strings.TrimSuffix(*input, ".csv") + "_corrected.csv"
	}
	if out == "-" {
		fmt.Print(buf.String())
	} else {
		log.Printf("CSV saved: %s", out)
		err := os.WriteFile(out, buf.Bytes(), os.ModePerm)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}
