// Package logging provides the end-of-run summary report for the detector
// and simulator commands. This file contains reusable table formatting
// infrastructure for aligned multi-column metric tables.

package logging

import (
	"fmt"
	"math"
	"strings"
)

// MetricRow represents a single row in a summary table.
// Values are pre-formatted strings to allow for mixed formatting (counts,
// decimals, rates).
type MetricRow struct {
	Label          string   // Row label, e.g., "Messages processed"
	Values         []string // One value per column
	Unit           string   // Unit suffix, e.g., "events", "" for unitless
	Interpretation string   // Optional interpretation text (only shown if non-empty)
}

// MetricTable formats aligned columns for metric summaries.
// Handles variable column widths, missing values, and an optional
// interpretation column.
type MetricTable struct {
	Headers []string    // Column headers, e.g., ["Count", "Rate"]
	Rows    []MetricRow // Data rows
}

// String renders the table with aligned columns.
// - Labels are left-aligned
// - Numeric values are right-aligned within their column
// - Units are appended after the last value column
// - Interpretation column only shown if any row has one
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	// Determine if we need an interpretation column
	hasInterpretation := false
	for _, row := range t.Rows {
		if row.Interpretation != "" {
			hasInterpretation = true
			break
		}
	}

	// Calculate column widths
	labelWidth := 0
	for _, row := range t.Rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
	}

	// Value column widths (one per header)
	valueWidths := make([]int, len(t.Headers))
	for i, header := range t.Headers {
		valueWidths[i] = len(header) // Start with header width
	}
	for _, row := range t.Rows {
		for i, val := range row.Values {
			if i < len(valueWidths) && len(val) > valueWidths[i] {
				valueWidths[i] = len(val)
			}
		}
	}

	// Unit width (find max unit length)
	unitWidth := 0
	for _, row := range t.Rows {
		if len(row.Unit) > unitWidth {
			unitWidth = len(row.Unit)
		}
	}

	// Build output
	var sb strings.Builder

	// Header row
	sb.WriteString(strings.Repeat(" ", labelWidth+2)) // Label column + gap
	for i, header := range t.Headers {
		sb.WriteString(fmt.Sprintf("%*s  ", valueWidths[i], header))
	}
	if unitWidth > 0 {
		sb.WriteString(strings.Repeat(" ", unitWidth+1)) // Unit column placeholder
	}
	if hasInterpretation {
		sb.WriteString("Interpretation")
	}
	sb.WriteString("\n")

	// Data rows
	for _, row := range t.Rows {
		// Label (left-aligned)
		sb.WriteString(fmt.Sprintf("%-*s  ", labelWidth, row.Label))

		// Values (right-aligned within their columns)
		for i := 0; i < len(t.Headers); i++ {
			val := "-" // Default for missing values
			if i < len(row.Values) && row.Values[i] != "" {
				val = row.Values[i]
			}
			sb.WriteString(fmt.Sprintf("%*s  ", valueWidths[i], val))
		}

		// Unit (left-aligned, after values)
		if unitWidth > 0 {
			sb.WriteString(fmt.Sprintf("%-*s ", unitWidth, row.Unit))
		}

		// Interpretation (left-aligned, if present)
		if hasInterpretation {
			sb.WriteString(row.Interpretation)
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

// MissingValue is the placeholder for unavailable measurements
const MissingValue = "-"

// formatMetric formats a numeric value with appropriate precision.
// Handles:
// - Regular floats: formatted to specified decimal places
// - Very small values (< 0.0001): scientific notation
// - NaN/Inf: returns MissingValue
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}

	// Use scientific notation for very small non-zero values
	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}

	format := fmt.Sprintf("%%.%df", decimals)
	return fmt.Sprintf(format, value)
}

// formatCount formats an integer counter.
func formatCount(value int) string {
	return fmt.Sprintf("%d", value)
}

// AddRow adds a row to the table with pre-formatted values.
func (t *MetricTable) AddRow(label string, values []string, unit string, interpretation string) {
	t.Rows = append(t.Rows, MetricRow{
		Label:          label,
		Values:         values,
		Unit:           unit,
		Interpretation: interpretation,
	})
}
