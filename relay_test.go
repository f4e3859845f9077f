package rtucrc

import (
	"bytes"
	"os"
	"testing"
)

// Mock Serial Port
type mockSerialPort struct {
	readBuffer  bytes.Buffer
	writeBuffer bytes.Buffer
	closed      bool
}

func (m *mockSerialPort) Read(b []byte) (n int, err error) {
	return m.readBuffer.Read(b)
}

func (m *mockSerialPort) Write(b []byte) (n int, err error) {
	return m.writeBuffer.Write(b)
}

func (m *mockSerialPort) Close() error {
	m.closed = true
	return nil
}

func TestBuildWriteCoil(t *testing.T) {
	// Channel 0 ON, the first frame the original board exerciser sends.
	frame, err := BuildWriteCoil(1, 0, true)
	if err != nil {
		t.Fatalf("BuildWriteCoil failed: %v", err)
	}
	expected := []byte{0x01, 0x05, 0x00, 0x00, 0xFF, 0x00, 0x8C, 0x3A}
	if !bytes.Equal(frame, expected) {
		t.Errorf("BuildWriteCoil frame: got % X, expected % X", frame, expected)
	}

	frame, err = BuildWriteCoil(1, 7, true)
	if err != nil {
		t.Fatalf("BuildWriteCoil failed: %v", err)
	}
	expected = []byte{0x01, 0x05, 0x00, 0x07, 0xFF, 0x00, 0x3D, 0xFB}
	if !bytes.Equal(frame, expected) {
		t.Errorf("BuildWriteCoil frame: got % X, expected % X", frame, expected)
	}

	// Every built frame must carry a valid trailing checksum.
	for ch := uint8(0); ch < RelayChannels; ch++ {
		for _, on := range []bool{false, true} {
			frame, err := BuildWriteCoil(2, ch, on)
			if err != nil {
				t.Fatalf("BuildWriteCoil(2, %d, %v) failed: %v", ch, on, err)
			}
			if !CheckFrame(frame) {
				t.Errorf("BuildWriteCoil(2, %d, %v) produced bad checksum: % X", ch, on, frame)
			}
		}
	}
}

func TestBuildWriteCoil_Invalid(t *testing.T) {
	if _, err := BuildWriteCoil(0, 0, true); err == nil {
		t.Error("BuildWriteCoil should fail for slave ID 0")
	}
	if _, err := BuildWriteCoil(248, 0, true); err == nil {
		t.Error("BuildWriteCoil should fail for slave ID > 247")
	}
	if _, err := BuildWriteCoil(1, RelayChannels, true); err == nil {
		t.Error("BuildWriteCoil should fail for channel out of range")
	}
}

func TestBuildWriteAll(t *testing.T) {
	frame, err := BuildWriteAll(1, true)
	if err != nil {
		t.Fatalf("BuildWriteAll failed: %v", err)
	}
	// Function 0x0F, coils 0..31, byte count 4, all bits set.
	prefix := []byte{0x01, 0x0F, 0x00, 0x00, 0x00, 0x20, 0x04, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(frame[:len(prefix)], prefix) {
		t.Errorf("BuildWriteAll frame: got % X, expected prefix % X", frame, prefix)
	}
	if !CheckFrame(frame) {
		t.Errorf("BuildWriteAll produced bad checksum: % X", frame)
	}

	frame, err = BuildWriteAll(1, false)
	if err != nil {
		t.Fatalf("BuildWriteAll failed: %v", err)
	}
	if !bytes.Equal(frame[7:11], []byte{0, 0, 0, 0}) {
		t.Errorf("BuildWriteAll(off) coil bytes: got % X, expected zeros", frame[7:11])
	}
	if !CheckFrame(frame) {
		t.Errorf("BuildWriteAll(off) produced bad checksum: % X", frame)
	}
}

func TestRelayClient_SetRelay(t *testing.T) {
	// The board echoes the request on success.
	echo, _ := BuildWriteCoil(1, 10, true)
	mockPort := &mockSerialPort{readBuffer: *bytes.NewBuffer(echo)}
	client := NewRelayClient(mockPort, 1, os.Stdout)

	if err := client.SetRelay(10, true); err != nil {
		t.Fatalf("SetRelay failed: %v", err)
	}
	if !bytes.Equal(mockPort.writeBuffer.Bytes(), echo) {
		t.Errorf("SetRelay sent % X, expected % X", mockPort.writeBuffer.Bytes(), echo)
	}
}

func TestRelayClient_SetRelay_BadCRC(t *testing.T) {
	echo, _ := BuildWriteCoil(1, 10, true)
	echo[len(echo)-1] ^= 0xFF // corrupt the checksum
	mockPort := &mockSerialPort{readBuffer: *bytes.NewBuffer(echo)}
	client := NewRelayClient(mockPort, 1, nil)

	if err := client.SetRelay(10, true); err == nil {
		t.Error("SetRelay should reject a reply with a bad checksum")
	}
}

func TestRelayClient_SetAll(t *testing.T) {
	reply := AppendChecksum([]byte{0x01, 0x0F, 0x00, 0x00, 0x00, 0x20})
	mockPort := &mockSerialPort{readBuffer: *bytes.NewBuffer(reply)}
	client := NewRelayClient(mockPort, 1, nil)

	if err := client.SetAll(true); err != nil {
		t.Fatalf("SetAll failed: %v", err)
	}
	sent := mockPort.writeBuffer.Bytes()
	if !CheckFrame(sent) {
		t.Errorf("SetAll sent a frame with a bad checksum: % X", sent)
	}
}

func TestRelayClient_ReadStates(t *testing.T) {
	// Channels 0, 2 and 31 on: coil bytes 05 00 00 80, wire CRC FA BD.
	reply := []byte{0x01, 0x01, 0x04, 0x05, 0x00, 0x00, 0x80, 0xFA, 0xBD}
	mockPort := &mockSerialPort{readBuffer: *bytes.NewBuffer(reply)}
	client := NewRelayClient(mockPort, 1, os.Stdout)

	states, err := client.ReadStates()
	if err != nil {
		t.Fatalf("ReadStates failed: %v", err)
	}
	if len(states) != RelayChannels {
		t.Fatalf("ReadStates returned %d states, expected %d", len(states), RelayChannels)
	}
	for i, s := range states {
		want := i == 0 || i == 2 || i == 31
		if s != want {
			t.Errorf("channel %d state = %v, expected %v", i, s, want)
		}
	}
}

func TestRelayClient_Exception(t *testing.T) {
	// Illegal data address exception for a write request.
	reply := []byte{0x01, 0x85, 0x02, 0xC3, 0x51}
	mockPort := &mockSerialPort{readBuffer: *bytes.NewBuffer(reply)}
	client := NewRelayClient(mockPort, 1, nil)

	err := client.SetRelay(3, false)
	if err == nil {
		t.Fatal("SetRelay should surface a device exception")
	}
}

func TestRelayClient_WrongSlave(t *testing.T) {
	echo, _ := BuildWriteCoil(2, 0, true)
	mockPort := &mockSerialPort{readBuffer: *bytes.NewBuffer(echo)}
	client := NewRelayClient(mockPort, 1, nil)

	if err := client.SetRelay(0, true); err == nil {
		t.Error("SetRelay should reject a reply from the wrong slave")
	}
}

func TestRelayClient_Close(t *testing.T) {
	mockPort := &mockSerialPort{}
	client := NewRelayClient(mockPort, 1, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !mockPort.closed {
		t.Error("Close did not close the port")
	}
}
