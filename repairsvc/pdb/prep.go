// Package pdb implements the preprocessing pass applied to PDB files
// before they are handed to FoldX.
package pdb

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	// chainColumn is the byte offset of the chain identifier in an atom record.
	chainColumn = 21

	// chainID is the constant written into the chain column.
	chainID = 'A'

	// terminatorMarker ends a chain's atom list.
	terminatorMarker = "TER"

	prepSuffix     = "_prep.pdb"
	repairedSuffix = "_prep_Repair.pdb"
)

// residueRewrites maps nonstandard protonation-state residue names to the
// canonical forms FoldX understands. Applied in order, to the whole line.
var residueRewrites = [...][2]string{
	{"HIE", "HIS"},
	{"HID", "HIS"},
	{"CYX", "CYS"},
	{"CYP", "CYS"},
}

// Options controls the preprocessing pass.
type Options struct {
	// SingleChain truncates the output at the first terminator record,
	// writing a bare "TER" sentinel and dropping everything after it.
	// When false all chains are kept, chain identifiers are preserved and
	// every terminator record is normalized in place.
	SingleChain bool
}

// Preprocess rewrites a PDB stream line by line: residue-name normalization
// first, then the chain column patch, then terminator handling per opts.
// The output is deterministic for a given input.
func Preprocess(r io.Reader, w io.Writer, opts Options) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	bw := bufio.NewWriter(w)

	for sc.Scan() {
		line := sc.Text()

		if strings.Contains(line, terminatorMarker) {
			if _, err := bw.WriteString(terminatorMarker + "\n"); err != nil {
				return fmt.Errorf("writing terminator sentinel: %w", err)
			}
			if opts.SingleChain {
				break
			}
			continue
		}

		rewritten := rewriteLine(line, opts.SingleChain)
		if _, err := bw.WriteString(rewritten + "\n"); err != nil {
			return fmt.Errorf("writing preprocessed line: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading pdb input: %w", err)
	}
	return bw.Flush()
}

func rewriteLine(line string, patchChain bool) string {
	for _, sub := range residueRewrites {
		line = strings.ReplaceAll(line, sub[0], sub[1])
	}
	if patchChain && len(line) > chainColumn {
		b := []byte(line)
		b[chainColumn] = chainID
		line = string(b)
	}
	return line
}

// Base strips a trailing .pdb extension from an artifact filename.
func Base(name string) string {
	return strings.TrimSuffix(name, ".pdb")
}

// PrepName is the workspace filename of the preprocessed structure.
func PrepName(base string) string {
	return base + prepSuffix
}

// RepairedName is the filename FoldX is expected to produce for a given base.
func RepairedName(base string) string {
	return base + repairedSuffix
}
