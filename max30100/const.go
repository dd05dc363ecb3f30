package max30100

// Register addresses
const (
	IntStatus = 0x00
	IntEnable = 0x01
	FIFOWrPtr = 0x02
	OvfCount  = 0x03
	FIFORdPtr = 0x04
	FIFOData  = 0x05
	ModeCfg   = 0x06
	SpO2Cfg   = 0x07
	LedCfg    = 0x09
	TempInt   = 0x16
	TempFrac  = 0x17
	RegRevID  = 0xFE
	RegPartID = 0xFF
)

// Interrupt flags
const (
	AlmostFull byte = (1 << 7)
	TempReady  byte = (1 << 6)
	HRReady    byte = (1 << 5)
	SpO2Ready  byte = (1 << 4)
	PowerReady byte = (1 << 0)
)

// Device constants
const (
	Addr      = 0x57
	PartID    = 0x11
	FIFODepth = 16
)

// Settings
const (
	shutdown     byte = 0b1000_0000
	ResetControl byte = 0b0100_0000
	TempEna      byte = 0b0000_1000
	modeMask     byte = 0b1111_1000

	HighResEna byte = 0b0100_0000
	hiResMask  byte = 0b1011_1111
)

// Mode is the operating mode of the device.
type Mode byte

// Operating modes
const (
	ModeHR   Mode = 0x02
	ModeSpO2 Mode = 0x03
)

func (m Mode) String() string {
	switch m {
	case ModeHR:
		return "HR only"
	case ModeSpO2:
		return "SpO2+HR"
	}
	return "unknown"
}

// SampleRate is the SpO2 sample rate control code.
type SampleRate byte

// SpO2 Sample Rate Control
const (
	SR50 SampleRate = iota
	SR100
	SR167
	SR200
	SR400
	SR600
	SR800
	SR1000

	srMask byte = 0b1110_0011
)

var srHz = [...]float64{50, 100, 167, 200, 400, 600, 800, 1000}

// Hz returns the sampling frequency in samples per second.
func (s SampleRate) Hz() float64 {
	if int(s) >= len(srHz) {
		return 0
	}
	return srHz[s]
}

// PulseWidth is the LED pulse width control code. It also sets the ADC
// resolution.
type PulseWidth byte

// LED Pulse Width Control
const (
	PW200 PulseWidth = iota // 13 bit ADC
	PW400                   // 14 bit ADC
	PW800                   // 15 bit ADC
	PW1600                  // 16 bit ADC

	pwMask byte = 0b1111_1100
)

var pwMicros = [...]int{200, 400, 800, 1600}

// Micros returns the pulse width in microseconds.
func (p PulseWidth) Micros() int {
	if int(p) >= len(pwMicros) {
		return 0
	}
	return pwMicros[p]
}

// Bits returns the ADC resolution for the pulse width.
func (p PulseWidth) Bits() int {
	return 13 + int(p&0b11)
}

// MaxSampleRate returns the fastest sample rate allowed for the pulse width
// in SpO2 mode.
func (p PulseWidth) MaxSampleRate() SampleRate {
	switch p {
	case PW1600:
		return SR100
	case PW800:
		return SR200
	case PW400:
		return SR400
	}
	return SR1000
}

// Current is the LED current control code.
type Current byte

// LED Current Control
const (
	MA0 Current = iota
	MA4_4
	MA7_6
	MA11
	MA14_2
	MA17_4
	MA20_8
	MA24
	MA27_1
	MA30_6
	MA33_8
	MA37
	MA40_2
	MA43_6
	MA46_8
	MA50

	MaxCurrent = MA50
)

var currentMA = [...]float64{0, 4.4, 7.6, 11, 14.2, 17.4, 20.8, 24, 27.1, 30.6, 33.8, 37, 40.2, 43.6, 46.8, 50}

// MilliAmps returns the typical LED current for the code.
func (c Current) MilliAmps() float64 {
	return currentMA[c&0x0F]
}
