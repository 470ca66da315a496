package structchunk

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dtype is the element type of a stored block, written as a NumPy array
// protocol type string (typestr). The format consists of 3 parts:
//   - One character describing the byteorder of the data:
//     "<": little-endian; ">": big-endian; "|": not-relevant
//   - One character code giving the basic type of the array:
//     "b" boolean, "i" integer, "u" unsigned integer, "f" floating point,
//     "c" complex, "S" fixed-length bytes, "V" other fixed-size memory,
//     "O" variable-length elements
//   - An integer specifying the number of bytes the type uses. Variable
//     length types use 0.
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

var (
	// Uint8 is the element type of benchmark values, encoded selections and
	// variable-length blobs
	Uint8 = Dtype{ByteOrder: BONotRelevant, BasicType: BTUnsigned, ByteSize: 1}
	// Uint64LE is the element type of variable-length index pairs
	Uint64LE = Dtype{ByteOrder: BOLittleEndian, BasicType: BTUnsigned, ByteSize: 8}
	// Variable marks blocks holding variable-length elements
	Variable = Dtype{ByteOrder: BONotRelevant, BasicType: BTObject}
)

// FixedBytes is a fixed-length byte string type of n bytes.
func FixedBytes(n int) Dtype {
	return Dtype{ByteOrder: BONotRelevant, BasicType: BTString, ByteSize: n}
}

func ParseDtype(s string) (dt Dtype, err error) {
	if len(s) < 3 {
		return dt, fmt.Errorf("invalid Dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	dt.ByteOrder, err = ParseByteOrder(rune(boByte))
	if err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	dt.BasicType, err = ParseBasicType(rune(typeByte))
	if err != nil {
		return dt, err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(s), 10, 0)
	if err != nil {
		return dt, err
	}
	dt.ByteSize = int(size)

	if dt.IsVariable() != (dt.ByteSize == 0) {
		return dt, fmt.Errorf("invalid Dtype %q: only variable-length types have size 0", dt)
	}
	return dt, nil
}

// IsVariable reports whether elements of this type have independent
// lengths.
func (dt Dtype) IsVariable() bool { return dt.BasicType == BTObject }

func (dt Dtype) String() string {
	return fmt.Sprintf("%s%s%d", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize)
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.String() + `"`), nil
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}

	*dt = t
	return nil
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTString        BasicType = 'S'
	BTOther         BasicType = 'V'
	BTObject        BasicType = 'O'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTString:        "bytes",
	BTOther:         "other",
	BTObject:        "variable-length",
}
