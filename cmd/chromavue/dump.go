package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var dumpLimit int

var dumpCmd = &cobra.Command{
	Use:   "dump <path>",
	Short: "Inspect a session artifact (.bin grid or .jsonl log)",
	Args:  cobra.ExactArgs(1),
	RunE:  dumpArtifact,
}

func init() {
	dumpCmd.Flags().IntVar(&dumpLimit, "limit", 1, "Number of log records to dump")
}

func dumpArtifact(cmd *cobra.Command, args []string) error {
	path := args[0]
	switch filepath.Ext(path) {
	case ".bin":
		return dumpGrid(path)
	case ".jsonl":
		return dumpLog(path, dumpLimit)
	default:
		return fmt.Errorf("unsupported artifact %s (want .bin or .jsonl)", path)
	}
}

// dumpGrid reads a raw little-endian float32 grid and prints its shape and
// summary statistics.
func dumpGrid(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read grid: %w", err)
	}
	if len(data)%4 != 0 {
		return fmt.Errorf("grid file %s has %d bytes, not a float32 multiple", path, len(data))
	}
	n := len(data) / 4
	if n == 0 {
		return fmt.Errorf("grid file %s is empty", path)
	}

	values := make([]float64, n)
	minV, maxV := math.Inf(1), math.Inf(-1)
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		values[i] = v
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))

	side := int(math.Sqrt(float64(n)))
	shape := fmt.Sprintf("%d values", n)
	if side*side == n {
		shape = fmt.Sprintf("%dx%d", side, side)
	}
	fmt.Printf("%s: %s min=%.4f max=%.4f mean=%.4f std=%.4f\n", path, shape, minV, maxV, mean, std)
	return nil
}

// dumpLog pretty-prints the first limit records of a line-delimited log.
func dumpLog(path string, limit int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	count := 0
	for scanner.Scan() {
		if limit > 0 && count >= limit {
			return nil
		}
		var decoded any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			fmt.Printf("record %d: decode error: %v\n", count, err)
			count++
			continue
		}
		pretty, err := json.MarshalIndent(decoded, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("record %d:\n%s\n", count, pretty)
		count++
	}
	return scanner.Err()
}
