// seqgen writes a synthetic line-delimited input file: random sequences over
// a fixed alphabet with lengths drawn uniformly from [min, max].
package main

import (
	"bufio"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"time"
)

func main() {
	var (
		n        = flag.Int("n", 100_000, "number of records to generate")
		minLen   = flag.Int("min", 10, "minimum record length")
		maxLen   = flag.Int("max", 100, "maximum record length")
		alphabet = flag.String("alphabet", "ACGT", "characters to draw from")
		output   = flag.String("output", "", "output file path")
		seed     = flag.Uint64("seed", 0, "PRNG seed (0 picks a time-based seed)")
	)
	flag.Parse()

	if *output == "" {
		log.Fatal("Output file must be specified using the -output flag")
	}
	if *n < 0 {
		log.Fatal("Number of records must be >= 0")
	}
	if *minLen < 1 || *maxLen < *minLen {
		log.Fatalf("Invalid length range [%d, %d]", *minLen, *maxLen)
	}
	if *alphabet == "" {
		log.Fatal("Alphabet must not be empty")
	}

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(*seed, *seed))

	file, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	buf := make([]byte, 0, *maxLen+1)
	for range *n {
		length := *minLen + rng.IntN(*maxLen-*minLen+1)
		buf = buf[:0]
		for range length {
			buf = append(buf, (*alphabet)[rng.IntN(len(*alphabet))])
		}
		buf = append(buf, '\n')
		if _, err := writer.Write(buf); err != nil {
			log.Fatalf("Failed to write record: %v", err)
		}
	}
	if err := writer.Flush(); err != nil {
		log.Fatalf("Failed to flush output: %v", err)
	}

	log.Printf("Generated %d records into %s (seed %d)", *n, *output, *seed)
}
