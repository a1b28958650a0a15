// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scan enumerates the legacy and docx inputs of a source directory.
package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Options controls which files a scan returns.
type Options struct {
	// OutputPrefix excludes previous output. Names starting with the prefix
	// less any trailing underscore are skipped, so "output_" skips every
	// name starting with "output".
	OutputPrefix string

	// Recursive descends into sub-directories.
	Recursive bool
}

// LegacyFiles returns the legacy word-processor files in dir: names ending
// in .doc in any letter case.
func LegacyFiles(afs afero.Fs, dir string, opts Options) ([]string, error) {
	return walk(afs, dir, opts, IsLegacy)
}

// ContainerFiles returns the docx files in dir: names ending in exactly
// ".docx".
func ContainerFiles(afs afero.Fs, dir string, opts Options) ([]string, error) {
	return walk(afs, dir, opts, IsContainer)
}

// IsLegacy reports whether name has a .doc extension in any letter case.
func IsLegacy(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".doc")
}

// IsContainer reports whether name ends in ".docx".
func IsContainer(name string) bool {
	return strings.HasSuffix(name, ".docx")
}

// Eligible reports whether a file name may be an input at all: it is not
// hidden, not a Word lock file, and not a previous run's output.
func Eligible(name string, opts Options) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	if stem := strings.TrimRight(opts.OutputPrefix, "_"); stem != "" && strings.HasPrefix(base, stem) {
		return false
	}
	return true
}

func walk(afs afero.Fs, dir string, opts Options, match func(string) bool) ([]string, error) {
	var out []string
	err := afero.Walk(afs, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p != dir && (!opts.Recursive || strings.HasPrefix(info.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if match(info.Name()) && Eligible(info.Name(), opts) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}
