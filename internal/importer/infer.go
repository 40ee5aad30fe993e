package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SimonWaldherr/tinyodbc/internal/encode"
	"github.com/SimonWaldherr/tinyodbc/internal/value"
)

// ColType is an inferred column type.
type ColType uint8

const (
	TextType ColType = iota
	BoolType
	IntType
	FloatType
	TimeType
)

var colTypeNames = [...]string{
	TextType:  "TEXT",
	BoolType:  "BOOL",
	IntType:   "INT",
	FloatType: "FLOAT",
	TimeType:  "TIME",
}

func (t ColType) String() string {
	if int(t) < len(colTypeNames) {
		return colTypeNames[t]
	}
	return "ColType(" + strconv.Itoa(int(t)) + ")"
}

// SQL returns the column type used in CREATE TABLE.
func (t ColType) SQL() string {
	switch t {
	case BoolType:
		return "BIT"
	case IntType:
		return "BIGINT"
	case FloatType:
		return "DOUBLE"
	case TimeType:
		return "TIMESTAMP"
	}
	return "TEXT"
}

// ============================================================================
// Type Inference
// ============================================================================

// inferColumnTypes votes per column over the sample. NULL literals do not
// vote.
func inferColumnTypes(sample [][]string, numCols int, nullLiterals []string) []ColType {
	types := make([]ColType, numCols)
	votes := make([]map[ColType]int, numCols)
	for i := range votes {
		votes[i] = make(map[ColType]int)
	}
	for _, row := range sample {
		for c := 0; c < numCols; c++ {
			var val string
			if c < len(row) {
				val = strings.TrimSpace(row[c])
			}
			if isNullValue(val, nullLiterals) {
				continue
			}
			votes[c][detectValueType(val)]++
		}
	}
	for c := range types {
		types[c] = determineColumnType(votes[c])
	}
	return types
}

// detectValueType returns the most specific type a single value parses as.
// It tries BOOL, INT, FLOAT and TIME before falling back to TEXT.
func detectValueType(val string) ColType {
	if val == "" {
		return TextType
	}
	switch strings.ToLower(val) {
	case "true", "false", "yes", "no", "t", "f", "y", "n":
		return BoolType
	}
	if _, err := strconv.ParseInt(val, 10, 64); err == nil {
		return IntType
	}
	if _, err := strconv.ParseFloat(val, 64); err == nil {
		return FloatType
	}
	if strings.Contains(val, "-") {
		if _, err := value.ParseDateTime(val, time.UTC); err == nil {
			return TimeType
		}
	}
	return TextType
}

// determineColumnType picks the most specific type covering at least 80%
// of the votes. Integers mixed with floats become FLOAT. Cells outside the
// winning type fail conversion later.
func determineColumnType(votes map[ColType]int) ColType {
	total := 0
	for _, n := range votes {
		total += n
	}
	if total == 0 {
		return TextType
	}
	threshold := float64(total) * 0.8
	switch {
	case float64(votes[BoolType]) >= threshold:
		return BoolType
	case float64(votes[TimeType]) >= threshold:
		return TimeType
	case float64(votes[IntType]) >= threshold && votes[FloatType] == 0:
		return IntType
	case float64(votes[IntType]+votes[FloatType]) >= threshold:
		return FloatType
	}
	return TextType
}

func isNullValue(val string, nullLiterals []string) bool {
	if nullLiterals == nil {
		return strings.TrimSpace(val) == ""
	}
	trimmed := strings.ToLower(strings.TrimSpace(val))
	for _, nl := range nullLiterals {
		if trimmed == strings.ToLower(strings.TrimSpace(nl)) {
			return true
		}
	}
	return false
}

// convertRow turns one record into statement parameters. Missing trailing
// cells are NULL.
func convertRow(rec []string, types []ColType, nullLiterals []string) ([]value.Value, error) {
	out := make([]value.Value, len(types))
	for i, t := range types {
		var cell string
		if i < len(rec) {
			cell = rec[i]
		}
		v, err := convertValue(cell, t, nullLiterals)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func convertValue(val string, t ColType, nullLiterals []string) (value.Value, error) {
	trimmed := strings.TrimSpace(val)
	if isNullValue(trimmed, nullLiterals) {
		return value.Null, nil
	}
	switch t {
	case BoolType:
		switch strings.ToLower(trimmed) {
		case "true", "yes", "t", "y", "1":
			return value.I32(1), nil
		case "false", "no", "f", "n", "0":
			return value.I32(0), nil
		}
		return value.Null, fmt.Errorf("%q is not a boolean", trimmed)
	case IntType:
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return value.Null, fmt.Errorf("%q is not an integer", trimmed)
		}
		return value.I64(n), nil
	case FloatType:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return value.Null, fmt.Errorf("%q is not a number", trimmed)
		}
		return value.F64(f), nil
	case TimeType:
		ts, err := value.ParseDateTime(trimmed, time.UTC)
		if err != nil {
			return value.Null, err
		}
		return value.Ext(value.ExtDateTime, value.I64(ts.UnixMilli())), nil
	}
	return encode.Quote(val)
}
