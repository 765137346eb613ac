package gsd

// Type identifies the element type of a chunk's payload, stored as a
// single byte in each index entry.
type Type uint8

// The type codes a GSD file may use for a chunk's elements. Any other
// value is invalid and sizeof it is 0.
const (
	TypeUint8   Type = 1
	TypeUint16  Type = 2
	TypeUint32  Type = 3
	TypeUint64  Type = 4
	TypeInt8    Type = 5
	TypeInt16   Type = 6
	TypeInt32   Type = 7
	TypeInt64   Type = 8
	TypeFloat32 Type = 9
	TypeFloat64 Type = 10
)

// SizeofType returns the size in bytes of one element of the given type,
// or 0 if the type code is unknown.
func SizeofType(t Type) int {
	switch t {
	case TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}
