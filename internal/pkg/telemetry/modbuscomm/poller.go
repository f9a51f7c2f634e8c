/*
poller.go Polls a meter over Modbus TCP or RTU and returns named, scaled
readings. One poller per meter; the baseline calibration (telemetry.go) maps
readings onto forecast snapshot fields.
*/

package modbuscomm

import (
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
)

// Transport selects the Modbus framing.
type Transport string

// Constants of Transport
const (
	TransportTCP Transport = "tcp"
	TransportRTU Transport = "rtu"
)

// PollerConfig is the configuration format for a meter poller.
type PollerConfig struct {
	Transport Transport `json:"Transport"`
	// Addr is host:port for TCP, the device path for RTU.
	Addr      string `json:"Addr"`
	SlaveID   byte   `json:"SlaveID"`
	TimeoutMS int    `json:"TimeoutMS"`
	BaudRate  int    `json:"BaudRate"`
}

// Poller reads a register set from one meter.
type Poller struct {
	handler modbus.ClientHandler
	close   func() error
}

// NewPoller is a factory for the Poller struct.
func NewPoller(cfg PollerConfig) Poller {
	timeout := time.Millisecond * time.Duration(cfg.TimeoutMS)
	if timeout <= 0 {
		timeout = time.Second
	}

	if cfg.Transport == TransportRTU {
		handler := modbus.NewRTUClientHandler(cfg.Addr)
		handler.Config = serial.Config{
			Address:  cfg.Addr,
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  timeout,
		}
		handler.SlaveId = cfg.SlaveID
		return Poller{handler: handler, close: handler.Close}
	}

	handler := modbus.NewTCPClientHandler(cfg.Addr)
	handler.Timeout = timeout
	handler.SlaveId = cfg.SlaveID
	return Poller{handler: handler, close: handler.Close}
}

// Read polls every register and decodes the responses. A failed register does
// not abort the remaining reads; the first read error is returned alongside
// the values that did decode.
func (p Poller) Read(registers []Register) (map[string]float64, error) {
	client := modbus.NewClient(p.handler)
	defer func() { _ = p.close() }()

	readValues := make(map[string]float64)
	var firstErr error
	for _, register := range registers {
		resp, err := client.ReadHoldingRegisters(register.Address, sizeOf(register.DataType))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		val, err := decode(resp, register)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		readValues[register.Name] = val
	}
	return readValues, firstErr
}
