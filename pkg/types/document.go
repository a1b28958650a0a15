// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the configuration and record types shared by the
// docx-templater stages.
package types

import "time"

// ConversionStatus indicates the outcome of converting one legacy file.
type ConversionStatus string

const (
	ConversionDone    ConversionStatus = "converted"
	ConversionSkipped ConversionStatus = "skipped"
	ConversionFailed  ConversionStatus = "failed"
)

// DocumentStatus indicates the outcome of templating one docx file.
type DocumentStatus string

const (
	DocumentProcessed DocumentStatus = "processed"
	DocumentSkipped   DocumentStatus = "skipped"
	DocumentFailed    DocumentStatus = "failed"
)

// Document records the templating of one source document.
type Document struct {
	// Path is the source docx path.
	Path string `json:"path" yaml:"path"`

	// OutputPath is where the templated copy was written.
	OutputPath string `json:"output_path" yaml:"output_path"`

	// SHA256 is the hex digest of the source file at processing time.
	SHA256 string `json:"sha256" yaml:"sha256"`

	// Status is the outcome of processing.
	Status DocumentStatus `json:"status" yaml:"status"`

	// Locations is the number of text-bearing locations visited.
	Locations int `json:"locations" yaml:"locations"`

	// Changed counts locations whose text the rewrite modified.
	Changed int `json:"changed" yaml:"changed"`

	// Deleted counts locations blanked as annotation lines.
	Deleted int `json:"deleted" yaml:"deleted"`

	// Placeholders maps each placeholder name found in the output to its
	// number of occurrences.
	Placeholders map[string]int `json:"placeholders,omitempty" yaml:"placeholders,omitempty"`

	// Error holds the failure message when Status is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// ProcessedAt is when processing finished.
	ProcessedAt time.Time `json:"processed_at" yaml:"processed_at"`
}

// Run summarises one ledger-tracked batch.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Processed  int       `json:"processed" yaml:"processed"`
	Skipped    int       `json:"skipped" yaml:"skipped"`
	Failed     int       `json:"failed" yaml:"failed"`
}
