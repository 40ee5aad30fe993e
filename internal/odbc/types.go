package odbc

import (
	"fmt"
	"strconv"
)

// SQLType is a raw SQL data type code as reported by SQLDescribeCol.
type SQLType int16

const (
	SQLUnknownType   SQLType = 0
	SQLChar          SQLType = 1
	SQLNumeric       SQLType = 2
	SQLDecimal       SQLType = 3
	SQLInteger       SQLType = 4
	SQLSmallInt      SQLType = 5
	SQLFloat         SQLType = 6
	SQLReal          SQLType = 7
	SQLDouble        SQLType = 8
	SQLDateTime      SQLType = 9
	SQLTimeOrIntvl   SQLType = 10
	SQLTimestampExt  SQLType = 11
	SQLVarchar       SQLType = 12
	SQLTypeDate      SQLType = 91
	SQLTypeTime      SQLType = 92
	SQLTypeTimestamp SQLType = 93
	SQLLongVarchar   SQLType = -1
	SQLBinary        SQLType = -2
	SQLVarbinary     SQLType = -3
	SQLLongVarbinary SQLType = -4
	SQLBigInt        SQLType = -5
	SQLTinyInt       SQLType = -6
	SQLBit           SQLType = -7
	SQLWChar         SQLType = -8
	SQLWVarchar      SQLType = -9
	SQLWLongVarchar  SQLType = -10
	SQLGUID          SQLType = -11
)

// TypeKind classifies a column's engine type.
type TypeKind uint8

const (
	Unknown TypeKind = iota
	Char
	Varchar
	LongVarchar
	WChar
	WVarchar
	WLongVarchar
	Numeric
	Decimal
	Integer
	SmallInt
	TinyInt
	BigInt
	Bit
	Float
	Real
	Double
	Date
	Time
	Timestamp
	Binary
	Varbinary
	LongVarbinary
	// Other carries an engine specific code in DataType.Code.
	Other
)

var kindNames = [...]string{
	Unknown:       "Unknown",
	Char:          "Char",
	Varchar:       "Varchar",
	LongVarchar:   "LongVarchar",
	WChar:         "WChar",
	WVarchar:      "WVarchar",
	WLongVarchar:  "WLongVarchar",
	Numeric:       "Numeric",
	Decimal:       "Decimal",
	Integer:       "Integer",
	SmallInt:      "SmallInt",
	TinyInt:       "TinyInt",
	BigInt:        "BigInt",
	Bit:           "Bit",
	Float:         "Float",
	Real:          "Real",
	Double:        "Double",
	Date:          "Date",
	Time:          "Time",
	Timestamp:     "Timestamp",
	Binary:        "Binary",
	Varbinary:     "Varbinary",
	LongVarbinary: "LongVarbinary",
	Other:         "Other",
}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "TypeKind(" + strconv.Itoa(int(k)) + ")"
}

// DataType describes a column's engine type. Which of the size fields are
// meaningful depends on Kind:
//
//	Char..WLongVarchar, Binary..LongVarbinary  Length (0 when unknown)
//	Numeric, Decimal                           Precision and Scale
//	Float                                      Precision (binary digits)
//	Time, Timestamp                            Precision (fractional digits)
//	Other                                      Code, Length (column size), Scale (decimal digits)
type DataType struct {
	Kind      TypeKind
	Length    int
	Precision int
	Scale     int
	Code      SQLType
}

// NumberStar is the precision/scale pair reported for an unconstrained
// NUMBER column.
const (
	NumberStarPrecision = 0
	NumberStarScale     = -127
)

// DataTypeFromSQL maps the triple returned by SQLDescribeCol onto a DataType.
// Codes without a dedicated kind become Other.
func DataTypeFromSQL(code SQLType, columnSize, decimalDigits int) DataType {
	dt := DataType{Code: code}
	switch code {
	case SQLUnknownType:
		dt.Kind = Unknown
	case SQLChar:
		dt.Kind, dt.Length = Char, columnSize
	case SQLVarchar:
		dt.Kind, dt.Length = Varchar, columnSize
	case SQLLongVarchar:
		dt.Kind, dt.Length = LongVarchar, columnSize
	case SQLWChar:
		dt.Kind, dt.Length = WChar, columnSize
	case SQLWVarchar:
		dt.Kind, dt.Length = WVarchar, columnSize
	case SQLWLongVarchar:
		dt.Kind, dt.Length = WLongVarchar, columnSize
	case SQLNumeric:
		dt.Kind, dt.Precision, dt.Scale = Numeric, columnSize, decimalDigits
	case SQLDecimal:
		dt.Kind, dt.Precision, dt.Scale = Decimal, columnSize, decimalDigits
	case SQLInteger:
		dt.Kind = Integer
	case SQLSmallInt:
		dt.Kind = SmallInt
	case SQLTinyInt:
		dt.Kind = TinyInt
	case SQLBigInt:
		dt.Kind = BigInt
	case SQLBit:
		dt.Kind = Bit
	case SQLFloat:
		dt.Kind, dt.Precision = Float, columnSize
	case SQLReal:
		dt.Kind = Real
	case SQLDouble:
		dt.Kind = Double
	case SQLTypeDate:
		dt.Kind = Date
	case SQLTypeTime:
		dt.Kind, dt.Precision = Time, decimalDigits
	case SQLTypeTimestamp:
		dt.Kind, dt.Precision = Timestamp, decimalDigits
	case SQLBinary:
		dt.Kind, dt.Length = Binary, columnSize
	case SQLVarbinary:
		dt.Kind, dt.Length = Varbinary, columnSize
	case SQLLongVarbinary:
		dt.Kind, dt.Length = LongVarbinary, columnSize
	default:
		dt.Kind, dt.Length, dt.Scale = Other, columnSize, decimalDigits
	}
	return dt
}

// Utf8Len returns the number of bytes needed to hold any value of the type
// rendered as UTF-8 text, excluding the terminating zero. ok is false when
// the length cannot be derived from the type alone.
func (dt DataType) Utf8Len() (n int, ok bool) {
	switch dt.Kind {
	case Char, Varchar, LongVarchar, WChar, WVarchar, WLongVarchar:
		if dt.Length <= 0 {
			return 0, false
		}
		// up to four bytes per character
		return dt.Length * 4, true
	case Binary, Varbinary, LongVarbinary:
		if dt.Length <= 0 {
			return 0, false
		}
		// hex digits
		return dt.Length * 2, true
	case Numeric, Decimal:
		if dt.Precision <= 0 {
			return 0, false
		}
		// sign and radix character
		return dt.Precision + 2, true
	case Integer:
		return 11, true
	case SmallInt:
		return 6, true
	case TinyInt:
		return 4, true
	case BigInt:
		return 20, true
	case Bit:
		return 1, true
	case Real:
		return 14, true
	case Float, Double:
		return 24, true
	case Date:
		return 10, true
	case Time:
		if dt.Precision > 0 {
			return 9 + dt.Precision, true
		}
		return 8, true
	case Timestamp:
		if dt.Precision > 0 {
			return 20 + dt.Precision, true
		}
		return 19, true
	}
	return 0, false
}

// IsBinary reports whether cells of the type are raw bytes rather than text.
func (dt DataType) IsBinary() bool {
	switch dt.Kind {
	case Binary, Varbinary, LongVarbinary:
		return true
	}
	return false
}

func (dt DataType) String() string {
	switch dt.Kind {
	case Char, Varchar, LongVarchar, WChar, WVarchar, WLongVarchar, Binary, Varbinary, LongVarbinary:
		return fmt.Sprintf("%s(%d)", dt.Kind, dt.Length)
	case Numeric, Decimal:
		return fmt.Sprintf("%s(%d,%d)", dt.Kind, dt.Precision, dt.Scale)
	case Float, Time, Timestamp:
		return fmt.Sprintf("%s(%d)", dt.Kind, dt.Precision)
	case Other:
		return fmt.Sprintf("Other(%d,%d,%d)", dt.Code, dt.Length, dt.Scale)
	}
	return dt.Kind.String()
}

// Nullability as reported by SQLDescribeCol.
type Nullability int16

const (
	NoNulls         Nullability = 0
	Nullable        Nullability = 1
	NullableUnknown Nullability = 2
)

// ColumnDescription is the raw result of describing one result column.
type ColumnDescription struct {
	Name        string
	Type        DataType
	Nullability Nullability
}
