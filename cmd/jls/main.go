// The jls command generates and inspects JLS signal container files.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

func main() {
	app := kingpin.New("jls", "Generate and inspect JLS signal container files.")
	app.HelpFlag.Short('h')

	verbose := app.Flag("verbose", "log debug-level detail to stderr").Bool()

	genCmd := app.Command("generate", "Write a demo JLS file with one source and one FSR signal.")
	genOut := genCmd.Arg("path", "output file path").Required().String()
	genSourceName := genCmd.Flag("source-name", "source name").Default("jls-gen").String()
	genSignalName := genCmd.Flag("signal-name", "signal name").Default("demo").String()
	genSIUnits := genCmd.Flag("si-units", "signal SI units").Default("V").String()
	genSamples := genCmd.Flag("length", "total raw sample count to generate").Default("1000000").Uint64()
	genSampleRate := genCmd.Flag("sample_rate", "signal sample rate, Hz").Default("1000").Uint32()
	genSamplesPerData := genCmd.Flag("samples_per_data", "raw samples per level-0 data chunk").Default("1024").Uint32()
	genSampleDecimateFactor := genCmd.Flag("sample_decimate_factor", "raw samples per level-1 summary entry").Default("10").Uint32()
	genEntriesPerSummary := genCmd.Flag("entries_per_summary", "entries accumulated before a summary/index chunk is emitted").Default("1000").Uint32()
	genSummaryDecimateFactor := genCmd.Flag("summary_decimate_factor", "child entries combined per parent-level entry").Default("10").Uint32()
	genWaveform := genCmd.Flag("waveform", "triangle, sine, or noise").Default("triangle").Enum("triangle", "sine", "noise")
	genAmplitude := genCmd.Flag("amplitude", "waveform peak amplitude").Default("1.0").Float64()
	genPeriod := genCmd.Flag("period", "waveform period in samples").Default("1000").Uint32()
	genAnnotationEvery := genCmd.Flag("annotation-every", "write a marker annotation every N samples (0 disables)").Default("0").Uint64()
	genSeed := genCmd.Flag("seed", "PRNG seed for the noise waveform").Default("1").Int64()

	profileCmd := app.Command("profile", "Summarize chunk tags and sizes in a JLS file.")
	profilePath := profileCmd.Arg("path", "file to profile").Required().String()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if *verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	var err error
	switch cmd {
	case genCmd.FullCommand():
		err = runGenerate(logger, generateOptions{
			out:                   *genOut,
			sourceName:            *genSourceName,
			signalName:            *genSignalName,
			siUnits:               *genSIUnits,
			samples:               *genSamples,
			sampleRate:            *genSampleRate,
			samplesPerData:        *genSamplesPerData,
			sampleDecimateFactor:  *genSampleDecimateFactor,
			entriesPerSummary:     *genEntriesPerSummary,
			summaryDecimateFactor: *genSummaryDecimateFactor,
			waveform:              *genWaveform,
			amplitude:             *genAmplitude,
			period:                *genPeriod,
			annotationEvery:       *genAnnotationEvery,
			seed:                  *genSeed,
		})
	case profileCmd.FullCommand():
		err = runProfile(logger, *profilePath)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "jls:", err)
		os.Exit(1)
	}
}
