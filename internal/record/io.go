package record

import (
	"bufio"
	"fmt"
	"os"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// ReadFile reads records from a line-delimited file. Blank lines are skipped;
// a line longer than opts.MaxLength fails the read with ErrTooLong.
func ReadFile(path string, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, opts.BufferSize), opts.BufferSize)

	var records []string
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if text == "" {
			continue
		}
		if err := Validate(text, opts.MaxLength); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return records, nil
}

// ReadGlob reads every regular file matching the doublestar pattern, in
// sorted path order, and concatenates their records. A pattern matching
// nothing is an error.
func ReadGlob(pattern string, opts Options) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
	}

	var files []string
	for _, match := range matches {
		info, err := os.Lstat(match)
		if err != nil {
			return nil, err
		}
		if info.Mode().IsRegular() {
			files = append(files, match)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matched the input pattern: %s", pattern)
	}
	slices.Sort(files)

	var records []string
	for _, file := range files {
		fileRecords, err := ReadFile(file, opts)
		if err != nil {
			return nil, err
		}
		records = append(records, fileRecords...)
	}

	return records, nil
}

// WriteFile writes records to path, one per line.
func WriteFile(path string, records []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, rec := range records {
		if _, err := writer.WriteString(rec); err != nil {
			return err
		}
		if err := writer.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	return file.Sync()
}
