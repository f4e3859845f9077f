// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package rtucrc

import (
	"fmt"
	"io"
)

// Modbus function codes used by the 32-channel relay board.
const (
	FuncReadCoils          = 0x01
	FuncWriteSingleCoil    = 0x05
	FuncWriteMultipleCoils = 0x0F
)

// RelayChannels is the number of relay outputs on the board, addressed as
// coils 0..31.
const RelayChannels = 32

func checkSlaveID(slaveID uint8) error {
	if slaveID == 0 || slaveID > 247 {
		return fmt.Errorf("invalid slave ID: %d (must be 1-247)", slaveID)
	}
	return nil
}

// BuildWriteCoil builds a write-single-coil frame switching one relay
// channel, checksum appended low byte first. The coil value is 0xFF00 for
// ON and 0x0000 for OFF as the Modbus specification requires.
func BuildWriteCoil(slaveID uint8, channel uint8, on bool) ([]byte, error) {
	if err := checkSlaveID(slaveID); err != nil {
		return nil, err
	}
	if channel >= RelayChannels {
		return nil, fmt.Errorf("invalid relay channel: %d (must be 0-%d)", channel, RelayChannels-1)
	}

	frame := []byte{slaveID, FuncWriteSingleCoil, 0x00, channel, 0x00, 0x00}
	if on {
		frame[4] = 0xFF
	}
	return AppendChecksum(frame), nil
}

// BuildWriteAll builds a write-multiple-coils frame driving every relay
// channel to the same state.
func BuildWriteAll(slaveID uint8, on bool) ([]byte, error) {
	if err := checkSlaveID(slaveID); err != nil {
		return nil, err
	}

	frame := []byte{slaveID, FuncWriteMultipleCoils,
		0x00, 0x00, // start address
		0x00, RelayChannels, // quantity
		RelayChannels / 8, // byte count
		0x00, 0x00, 0x00, 0x00,
	}
	if on {
		for i := 7; i < 11; i++ {
			frame[i] = 0xFF
		}
	}
	return AppendChecksum(frame), nil
}

// BuildReadCoils builds a read-coils request covering all relay channels.
func BuildReadCoils(slaveID uint8) ([]byte, error) {
	if err := checkSlaveID(slaveID); err != nil {
		return nil, err
	}
	frame := []byte{slaveID, FuncReadCoils, 0x00, 0x00, 0x00, RelayChannels}
	return AppendChecksum(frame), nil
}

// RelayClient drives a 32-channel relay board over an already-open serial
// port. Blocking behaviour follows the port's own read timeout; the client
// adds none of its own. Every reply is checksum-verified before it is
// interpreted; a mismatch rejects the frame with an error, it is never
// retried here.
type RelayClient struct {
	port    io.ReadWriteCloser
	slaveID uint8
	logger  io.Writer
}

// NewRelayClient creates a client for the relay board at slaveID.
func NewRelayClient(port io.ReadWriteCloser, slaveID uint8, logger io.Writer) *RelayClient {
	return &RelayClient{
		port:    port,
		slaveID: slaveID,
		logger:  logger,
	}
}

// SetRelay switches a single relay channel. The board echoes the request on
// success; the echo is verified byte for byte.
func (c *RelayClient) SetRelay(channel uint8, on bool) error {
	request, err := BuildWriteCoil(c.slaveID, channel, on)
	if err != nil {
		return err
	}

	reply, err := c.transact(request, len(request))
	if err != nil {
		return err
	}
	for i := range request {
		if reply[i] != request[i] {
			return fmt.Errorf("unexpected echo: got % X, sent % X", reply, request)
		}
	}
	return nil
}

// SetAll drives every relay channel to the same state.
func (c *RelayClient) SetAll(on bool) error {
	request, err := BuildWriteAll(c.slaveID, on)
	if err != nil {
		return err
	}

	// Reply: slave ID, function code, start address, quantity, CRC.
	reply, err := c.transact(request, 8)
	if err != nil {
		return err
	}
	if reply[1] != FuncWriteMultipleCoils {
		return fmt.Errorf("unexpected function code in reply: %d, expected %d", reply[1], FuncWriteMultipleCoils)
	}
	return nil
}

// ReadStates reads back the state of all relay channels, channel 0 first.
func (c *RelayClient) ReadStates() ([]bool, error) {
	request, err := BuildReadCoils(c.slaveID)
	if err != nil {
		return nil, err
	}

	// Reply: slave ID, function code, byte count, 4 coil bytes, CRC.
	reply, err := c.transact(request, 5+RelayChannels/8)
	if err != nil {
		return nil, err
	}
	if reply[1] != FuncReadCoils {
		return nil, fmt.Errorf("unexpected function code in reply: %d, expected %d", reply[1], FuncReadCoils)
	}
	byteCount := int(reply[2])
	if byteCount != RelayChannels/8 {
		return nil, fmt.Errorf("unexpected byte count in reply: %d, expected %d", byteCount, RelayChannels/8)
	}

	states := make([]bool, RelayChannels)
	for i := range states {
		if reply[3+i/8]&(1<<(i%8)) != 0 {
			states[i] = true
		}
	}
	return states, nil
}

// Close closes the underlying port.
func (c *RelayClient) Close() error {
	return c.port.Close()
}

// transact writes a request and reads a reply of replyLen bytes, handling
// the short exception reply and verifying the trailing checksum.
func (c *RelayClient) transact(request []byte, replyLen int) ([]byte, error) {
	c.logf("[DEBUG] TX % X", request)
	if _, err := c.port.Write(request); err != nil {
		return nil, fmt.Errorf("write failed: %v", err)
	}

	// An exception reply is 5 bytes: slave ID, function|0x80, exception
	// code, CRC. Read that much first, then the remainder if the reply is
	// a normal one.
	reply := make([]byte, replyLen)
	if _, err := io.ReadFull(c.port, reply[:5]); err != nil {
		return nil, fmt.Errorf("read failed: %v", err)
	}
	if reply[1]&0x80 != 0 {
		if !CheckFrame(reply[:5]) {
			return nil, fmt.Errorf("CRC mismatch on exception reply % X", reply[:5])
		}
		return nil, fmt.Errorf("device exception: function %#02x, code %d", reply[1]&0x7F, reply[2])
	}
	if replyLen > 5 {
		if _, err := io.ReadFull(c.port, reply[5:]); err != nil {
			return nil, fmt.Errorf("read failed: %v", err)
		}
	}
	c.logf("[DEBUG] RX % X", reply)

	if reply[0] != c.slaveID {
		return nil, fmt.Errorf("reply from wrong slave: %d, expected %d", reply[0], c.slaveID)
	}
	if !CheckFrame(reply) {
		return nil, fmt.Errorf("CRC mismatch on reply % X", reply)
	}
	return reply, nil
}

func (c *RelayClient) logf(format string, args ...interface{}) {
	if c.logger != nil {
		fmt.Fprintf(c.logger, format+"\n", args...)
	}
}
