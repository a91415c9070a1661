package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lucasjlepore/fit-tours/fitstream"
	"github.com/lucasjlepore/fit-tours/message"
)

func main() {
	var (
		outPath      = flag.String("out", "", "write messages as JSON lines to this file (default stdout)")
		summaryOnly  = flag.Bool("summary", false, "print only the decode summary")
		skipChecksum = flag.Bool("skip-checksum", false, "decode files whose CRC does not match")
		verbose      = flag.Bool("v", false, "log decoder diagnostics to stderr")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-fit-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
		os.Exit(1)
	}

	var out io.Writer = io.Discard
	if !*summaryOnly {
		out = os.Stdout
		if *outPath != "" {
			f, err := os.Create(*outPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "create output failed: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			out = f
		}
	}
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	dec := fitstream.Decoder{SkipChecksum: *skipChecksum}
	if *verbose {
		dec.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	var writeErr error
	sum, err := dec.Decode(data, func(m message.Message) error {
		if writeErr == nil && !*summaryOnly {
			writeErr = enc.Encode(fitstream.Describe(m))
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode failed: %v\n", err)
		os.Exit(1)
	}
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if writeErr != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", writeErr)
		os.Exit(1)
	}

	summary := json.NewEncoder(os.Stderr)
	if *summaryOnly || *outPath != "" {
		summary = json.NewEncoder(os.Stdout)
	}
	summary.SetIndent("", "  ")
	if err := summary.Encode(sum); err != nil {
		fmt.Fprintf(os.Stderr, "summary encode failed: %v\n", err)
		os.Exit(1)
	}
}
