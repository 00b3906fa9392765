package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/split-checkout/internal/commerce"
)

// ErrEmptyFile is returned when the upload carries no data rows.
var ErrEmptyFile = errors.New("importer: file has no address rows")

// ErrMissingHeader is returned when a required column is absent.
var ErrMissingHeader = errors.New("importer: missing required column")

// RowError describes why one data row was rejected.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Result carries the parsed addresses alongside per-row rejections.
// Rejected rows never abort the import; the shopper fixes them in the
// review table instead.
type Result struct {
	Addresses []commerce.Address `json:"addresses"`
	Rejected  []RowError         `json:"rejected,omitempty"`
}

var requiredColumns = []string{"country"}

// columnSetters maps a normalised header name to the address field it fills.
var columnSetters = map[string]func(*commerce.Address, string){
	"key":          func(a *commerce.Address, v string) { a.Key = v },
	"firstname":    func(a *commerce.Address, v string) { a.FirstName = v },
	"lastname":     func(a *commerce.Address, v string) { a.LastName = v },
	"streetname":   func(a *commerce.Address, v string) { a.StreetName = v },
	"streetnumber": func(a *commerce.Address, v string) { a.StreetNumber = v },
	"postalcode":   func(a *commerce.Address, v string) { a.PostalCode = v },
	"city":         func(a *commerce.Address, v string) { a.City = v },
	"region":       func(a *commerce.Address, v string) { a.Region = v },
	"country":      func(a *commerce.Address, v string) { a.Country = strings.ToUpper(v) },
	"phone":        func(a *commerce.Address, v string) { a.Phone = v },
	"email":        func(a *commerce.Address, v string) { a.Email = v },
}

// Parser turns an uploaded address book into backend addresses.
type Parser struct {
	Validate *validator.Validate
	MaxRows  int
}

// NewParser constructs a parser with a shared validator instance.
func NewParser(v *validator.Validate, maxRows int) *Parser {
	if maxRows <= 0 {
		maxRows = 500
	}
	return &Parser{Validate: v, MaxRows: maxRows}
}

// Parse reads a header-mapped CSV file. Column names are matched case-
// and separator-insensitively ("First Name" == "firstName" == "first_name").
func (p *Parser) Parse(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, ErrEmptyFile
		}
		return Result{}, fmt.Errorf("importer: read header: %w", err)
	}
	columns := make([]string, len(header))
	seen := map[string]bool{}
	for i, name := range header {
		normalised := normaliseHeader(name)
		columns[i] = normalised
		seen[normalised] = true
	}
	for _, required := range requiredColumns {
		if !seen[required] {
			return Result{}, fmt.Errorf("%w: %s", ErrMissingHeader, required)
		}
	}

	var result Result
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: line, Reason: err.Error()})
			continue
		}
		if len(result.Addresses) >= p.MaxRows {
			return Result{}, fmt.Errorf("importer: more than %d rows", p.MaxRows)
		}
		var addr commerce.Address
		empty := true
		for i, value := range record {
			if i >= len(columns) {
				break
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			empty = false
			if set, ok := columnSetters[columns[i]]; ok {
				set(&addr, value)
			}
		}
		if empty {
			continue
		}
		if p.Validate != nil {
			if err := p.Validate.Struct(addr); err != nil {
				result.Rejected = append(result.Rejected, RowError{Line: line, Reason: validationReason(err)})
				continue
			}
		}
		result.Addresses = append(result.Addresses, addr)
	}
	if len(result.Addresses) == 0 && len(result.Rejected) == 0 {
		return Result{}, ErrEmptyFile
	}
	return result, nil
}

func normaliseHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)
	return name
}

func validationReason(err error) string {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, fmt.Sprintf("%s fails %s", f.Field(), f.Tag()))
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}
