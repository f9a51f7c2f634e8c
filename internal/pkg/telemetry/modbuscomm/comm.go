/*
comm.go Modbus register map for revenue meters at customer connection points.
Registers are described in the meter configuration document and decoded into
engineering units by the poller.
*/

package modbuscomm

import (
	"encoding/binary"
	"errors"
	"math"
)

// ModbusComm interface
type ModbusComm interface {
	Read([]Register) (map[string]float64, error)
}

// DataType defines the type of Modbus register for decoding
type DataType string

// Constants of DataType
const (
	u16 DataType = "u16"
	u32 DataType = "u32"
	u64 DataType = "u64"
	i16 DataType = "i16"
	i32 DataType = "i32"
	i64 DataType = "i64"
	f32 DataType = "f32"
	f64 DataType = "f64"
)

// Endian byte order of Modbus register for decoding
type Endian string

// Constants of Endian
const (
	littleEndian Endian = "little"
	bigEndian    Endian = "big"
)

// Register contains the data required to read and scale a Modbus register
type Register struct {
	Name        string   `json:"Name"`
	Address     uint16   `json:"Address"`
	DataType    DataType `json:"DataType"`
	Endianness  Endian   `json:"Endianness"`
	ScaleFactor float64  `json:"ScaleFactor"`
}

// sizeOf returns the register count occupied by a datatype.
func sizeOf(d DataType) uint16 {
	switch d {
	case u16, i16:
		return 1
	case u32, i32, f32:
		return 2
	case u64, i64, f64:
		return 4
	}
	return 1
}

func getByteOrder(e Endian) binary.ByteOrder {
	if e == littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// decode converts a raw register read into a scaled float64.
func decode(raw []byte, register Register) (float64, error) {
	endian := getByteOrder(register.Endianness)
	var val float64
	switch register.DataType {
	case u16:
		val = float64(endian.Uint16(raw))
	case i16:
		val = float64(int16(endian.Uint16(raw)))
	case u32:
		val = float64(endian.Uint32(raw))
	case i32:
		val = float64(int32(endian.Uint32(raw)))
	case f32:
		val = float64(math.Float32frombits(endian.Uint32(raw)))
	case u64:
		val = float64(endian.Uint64(raw))
	case i64:
		val = float64(int64(endian.Uint64(raw)))
	case f64:
		val = math.Float64frombits(endian.Uint64(raw))
	default:
		return 0, errors.New("modbuscomm: unknown register datatype " + string(register.DataType))
	}

	scale := register.ScaleFactor
	if scale == 0 {
		scale = 1
	}
	return val * scale, nil
}
