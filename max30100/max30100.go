// Package max30100 is a register level driver for the MAX30100 pulse oximeter
// and heart rate sensor over I²C.
package max30100

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	// ErrNotDevice throws an error when the device part ID does not match a
	// MAX30100 signature (0x11).
	ErrNotDevice = errors.New("max30100: part ID does not match (0x11)")
	// ErrTimeout is returned when a status flag does not change after
	// pollLimit reads.
	ErrTimeout = errors.New("max30100: timed out waiting for device")
)

const pollLimit = 256

// Device defines a MAX30100 device.
type Device struct {
	dev *i2c.Dev
	bus io.Closer

	fifo struct {
		ir, red [FIFODepth]uint16
		head    int
		n       int
	}
}

// New returns a new MAX30100 device on the named bus. By default, the device
// runs in SpO2 mode at 100 samples/s with a pulse width of 1600us, 16 bit
// resolution, 50mA on the IR LED and 27.1mA on the red LED.
//
// Argument "busName" can be used to specify the exact bus to use ("/dev/i2c-2", "I2C2", "2").
// Argument "addr" can be used to specify alternative address if default (0x57) is unavailable and changed.
// If "busName" argument is specified as an empty string "" the first available bus will be used.
func New(busName string, addr uint16) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("max30100: could not initialize host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("max30100: could not open I2C bus: %w", err)
	}

	d, err := Open(bus, addr)
	if err != nil {
		bus.Close()
		return nil, err
	}
	d.bus = bus

	return d, nil
}

// Open returns a MAX30100 device on an already opened bus. The bus is not
// closed by Close.
func Open(bus i2c.Bus, addr uint16) (*Device, error) {
	if addr == 0 {
		addr = Addr
	}

	d := &Device{
		dev: &i2c.Dev{
			Addr: addr,
			Bus:  bus,
		},
	}

	part, err := d.Read(RegPartID)
	if err != nil {
		return nil, fmt.Errorf("max30100: could not get part ID: %w", err)
	}
	if part != PartID {
		return nil, ErrNotDevice
	}

	if err := d.Reset(); err != nil {
		return nil, fmt.Errorf("max30100: could not reset device: %w", err)
	}
	if _, err = d.Options(
		SetMode(ModeSpO2),
		SetSampleRate(SR100),
		SetPulseWidth(PW1600),
		SetHighRes(true),
		SetLEDCurrents(MA27_1, MA50),
	); err != nil {
		return nil, fmt.Errorf("max30100: could not initialize device: %w", err)
	}

	return d, nil
}

// Close shuts the device down and releases the bus if it was opened by New.
func (d *Device) Close() error {
	err := d.Shutdown()
	if d.bus != nil {
		if cerr := d.bus.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// RevID returns the revision ID of the device.
func (d *Device) RevID() (byte, error) {
	rev, err := d.Read(RegRevID)
	if err != nil {
		return 0, fmt.Errorf("max30100: could not get revision ID: %w", err)
	}
	return rev, nil
}

// Read reads a single byte from a register.
func (d *Device) Read(reg byte) (byte, error) {
	b := make([]byte, 1)
	if err := d.dev.Tx([]byte{reg}, b); err != nil {
		return 0, fmt.Errorf("max30100: could not read byte: %w", err)
	}

	return b[0], nil
}

// ReadBytes read n bytes from a register.
func (d *Device) ReadBytes(reg byte, n int) ([]byte, error) {
	b := make([]byte, n)
	if err := d.dev.Tx([]byte{reg}, b); err != nil {
		return nil, fmt.Errorf("max30100: could not read %d bytes: %w", n, err)
	}

	return b, nil
}

// Write writes a byte to a register.
func (d *Device) Write(reg, data byte) error {
	if err := d.dev.Tx([]byte{reg, data}, nil); err != nil {
		return fmt.Errorf("max30100: could not write %#x: %w", reg, err)
	}

	return nil
}

func (d *Device) waitUntil(reg, flag byte, set bool) error {
	for i := 0; i < pollLimit; i++ {
		state, err := d.Read(reg)
		if err != nil {
			return fmt.Errorf("could not wait for %#x in %#x: %w", flag, reg, err)
		}
		if (state&flag != 0) == set {
			return nil
		}
	}

	return fmt.Errorf("%#x in %#x: %w", flag, reg, ErrTimeout)
}

// Reset resets the device. All configurations, thresholds, and data registers
// are reset to their power-on state.
func (d *Device) Reset() error {
	if err := d.Write(ModeCfg, ResetControl); err != nil {
		return fmt.Errorf("max30100: could not reset: %w", err)
	}
	if err := d.waitUntil(ModeCfg, ResetControl, false); err != nil {
		return fmt.Errorf("max30100: could not reset: %w", err)
	}
	d.fifo.head, d.fifo.n = 0, 0

	return nil
}

// Temperature returns the die temperature of the device in Celsius.
func (d *Device) Temperature() (float64, error) {
	if _, err := config(d, ModeCfg, ^TempEna, TempEna); err != nil {
		return 0, fmt.Errorf("max30100: could not enable temperature: %w", err)
	}
	if err := d.waitUntil(ModeCfg, TempEna, false); err != nil {
		return 0, fmt.Errorf("max30100: temperature not ready: %w", err)
	}

	i, err := d.Read(TempInt)
	if err != nil {
		return 0, fmt.Errorf("max30100: could not read integer part of temperature: %w", err)
	}

	f, err := d.Read(TempFrac)
	if err != nil {
		return 0, fmt.Errorf("max30100: could not read fractional part of temperature: %w", err)
	}

	return float64(int8(i)) + (float64(f&0x0F) * 0.0625), nil
}

// Available returns the number of unread samples in the device FIFO.
func (d *Device) Available() (int, error) {
	wr, err := d.Read(FIFOWrPtr)
	if err != nil {
		return 0, err
	}
	rd, err := d.Read(FIFORdPtr)
	if err != nil {
		return 0, err
	}

	if wr == rd {
		// equal pointers are either empty or overflowed
		ovf, err := d.Read(OvfCount)
		if err != nil {
			return 0, err
		}
		if ovf != 0 {
			return FIFODepth, nil
		}
		return 0, nil
	}

	return (int(wr) - int(rd) + FIFODepth) % FIFODepth, nil
}

// IRRed returns the next raw IR and red sample. If the device has no new
// data, ok is false. All available samples are read from the device in one
// burst and handed out one at a time.
func (d *Device) IRRed() (ir, red uint16, ok bool, err error) {
	if d.fifo.n == 0 {
		if err := d.fill(); err != nil {
			return 0, 0, false, err
		}
		if d.fifo.n == 0 {
			return 0, 0, false, nil
		}
	}

	ir = d.fifo.ir[d.fifo.head]
	red = d.fifo.red[d.fifo.head]
	d.fifo.head = (d.fifo.head + 1) % FIFODepth
	d.fifo.n--

	return ir, red, true, nil
}

func (d *Device) fill() error {
	n, err := d.Available()
	if err != nil {
		return fmt.Errorf("max30100: error reading available data: %w", err)
	}
	if n == 0 {
		return nil
	}

	bytes, err := d.ReadBytes(FIFOData, 4*n)
	if err != nil {
		return err
	}

	d.fifo.head = 0
	d.fifo.n = n
	for i := 0; i < n; i++ {
		b := bytes[4*i:]
		d.fifo.ir[i] = uint16(b[0])<<8 | uint16(b[1])
		d.fifo.red[i] = uint16(b[2])<<8 | uint16(b[3])
	}

	return nil
}

// Shutdown sets the device into power-save mode.
func (d *Device) Shutdown() error {
	_, err := config(d, ModeCfg, ^shutdown, shutdown)

	return err
}

// Startup wakes the device from power-save mode.
func (d *Device) Startup() error {
	_, err := config(d, ModeCfg, ^shutdown, 0)

	return err
}

var dumpRegs = []struct {
	name string
	reg  byte
}{
	{"INT_STATUS", IntStatus},
	{"INT_ENABLE", IntEnable},
	{"FIFO_WR_PTR", FIFOWrPtr},
	{"OVF_COUNTER", OvfCount},
	{"FIFO_RD_PTR", FIFORdPtr},
	{"MODE_CONFIG", ModeCfg},
	{"SPO2_CONFIG", SpO2Cfg},
	{"LED_CONFIG", LedCfg},
	{"TEMP_INT", TempInt},
	{"TEMP_FRAC", TempFrac},
	{"REV_ID", RegRevID},
	{"PART_ID", RegPartID},
}

// DumpRegisters writes the value of every readable configuration register to
// w.
func DumpRegisters(w io.Writer, r Registers) error {
	for _, dr := range dumpRegs {
		b, err := r.Read(dr.reg)
		if err != nil {
			return fmt.Errorf("max30100: could not dump %s: %w", dr.name, err)
		}
		fmt.Fprintf(w, "%-12s %#04x = %#04x (%#010b)\n", dr.name, dr.reg, b, b)
	}
	return nil
}
