package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/practicum-hub/practicum/internal/registration"
)

// TaxIDOptions defines the flags for the taxid command.
type TaxIDOptions struct {
	IDs        []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// TaxIDResult reports the check of a single identifier.
type TaxIDResult struct {
	Input    string `json:"input"`
	Digits   string `json:"digits"`
	Valid    bool   `json:"valid"`
	Expected *int   `json:"expected_check_digit,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CheckTaxIDs validates every identifier and computes the expected check digit
// whenever the nine base digits are present.
func CheckTaxIDs(ids []string) []TaxIDResult {
	results := make([]TaxIDResult, 0, len(ids))
	for _, raw := range ids {
		digits := registration.DigitsOnly(raw)
		res := TaxIDResult{Input: raw, Digits: digits}
		if len(digits) >= registration.TaxIDLength-1 {
			if expected, err := registration.TaxIDCheckDigit(digits[:registration.TaxIDLength-1]); err == nil {
				res.Expected = &expected
			}
		}
		if err := registration.CheckTaxID(raw); err != nil {
			res.Error = err.Error()
		} else {
			res.Valid = true
		}
		results = append(results, res)
	}
	return results
}

// TaxIDCommand prints the outcome for each identifier. The exit code is 1 when
// any identifier is invalid and 2 on usage errors.
func TaxIDCommand(opts TaxIDOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.IDs) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "taxid: at least one identifier is required")
		return 2
	}

	results := CheckTaxIDs(opts.IDs)
	exitCode := 0
	for _, res := range results {
		if !res.Valid {
			exitCode = 1
		}
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "taxid: encode output: %v\n", err)
			return 2
		}
		return exitCode
	}

	for _, res := range results {
		_, _ = fmt.Fprintln(opts.Stdout, formatResult(res))
	}
	return exitCode
}

func formatResult(res TaxIDResult) string {
	var b strings.Builder
	b.WriteString(res.Input)
	if res.Valid {
		b.WriteString(": ok")
		return b.String()
	}
	b.WriteString(": invalid")
	switch {
	case res.Expected != nil && errors.Is(registration.CheckTaxID(res.Input), registration.ErrInvalidCheckDigit):
		b.WriteString(" (expected check digit " + strconv.Itoa(*res.Expected) + ")")
	case res.Expected != nil && len(res.Digits) == registration.TaxIDLength-1:
		b.WriteString(" (missing check digit, expected " + strconv.Itoa(*res.Expected) + ")")
	case res.Error != "":
		b.WriteString(" (" + res.Error + ")")
	}
	return b.String()
}
