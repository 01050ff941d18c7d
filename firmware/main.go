//go:build tinygo

//go:generate tinygo flash -target=xiao

// Firmware for the light controller board. The host drives everything over
// the serial line:
//
//	R\n               -> S,<unix_micros>,<raw>\n  or  E,<code>\n
//	P,<period>,<on>\n -> sets the lamp PWM (microseconds, output-high time)
//	bad command       -> F,<code>\n
//	button press      -> B,<mask>\n (A=1 B=2 C=4 D=8)
package main

import (
	"machine"
	"runtime/volatile"
	"strconv"
	"time"
)

// Fault codes reported in F lines. E lines are reserved for conversions.
const (
	faultBadCommand = 1
	faultBadPWM     = 2
)

var (
	adc  machine.ADC
	uart = machine.UART0

	lampChannel uint8
	periodUs    uint32 = PWM_DEFAULT_PERIOD_US

	// Set from pin interrupts, drained by the main loop.
	pressed     volatile.Register8
	lastPressed [4]time.Time

	buttons = [4]machine.Pin{
		PIN_BUTTON_AUTOMATIC,
		PIN_BUTTON_MANUAL,
		PIN_BUTTON_UP,
		PIN_BUTTON_DOWN,
	}

	// Serial buffer for reading lines
	serialBuffer [32]byte
	serialPos    int
)

func main() {
	PIN_SENSOR.Configure(machine.PinConfig{Mode: machine.PinInput})
	adc = machine.ADC{Pin: PIN_SENSOR}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	configureLamp()
	configureButtons()

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	for {
		processSerial()
		reportButtons()
		time.Sleep(100 * time.Microsecond)
	}
}

func configureLamp() {
	err := PWM_LAMP.Configure(machine.PWMConfig{
		Period: uint64(periodUs) * 1000,
	})
	if err != nil {
		reportFault(faultBadPWM)
		return
	}
	lampChannel, err = PWM_LAMP.Channel(PIN_LAMP)
	if err != nil {
		reportFault(faultBadPWM)
		return
	}
	// Lamp off until the host says otherwise.
	PWM_LAMP.Set(lampChannel, PWM_LAMP.Top())
}

func configureButtons() {
	for i, pin := range buttons {
		bit := uint8(1) << i
		pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		pin.SetInterrupt(machine.PinFalling, func(machine.Pin) {
			pressed.SetBits(bit)
		})
	}
}

// reportButtons sends one B line per debounced batch of presses.
func reportButtons() {
	bits := pressed.Get()
	if bits == 0 {
		return
	}
	pressed.ClearBits(bits)

	now := time.Now()
	var mask uint8
	for i := range buttons {
		bit := uint8(1) << i
		if bits&bit == 0 {
			continue
		}
		if now.Sub(lastPressed[i]) < BUTTON_DEBOUNCE_MS*time.Millisecond {
			continue
		}
		lastPressed[i] = now
		mask |= bit
	}
	if mask == 0 {
		return
	}

	print("B,")
	print(mask)
	print("\n")
}

// readSensor scales the 16-bit TinyGo reading down to ADC_RESOLUTION bits.
func readSensor() uint16 {
	return adc.Get() >> (16 - ADC_RESOLUTION)
}

func reportSample() {
	raw := readSensor()
	print("S,")
	print(time.Now().UnixMicro())
	print(",")
	print(raw)
	print("\n")
}

func reportFault(code int) {
	print("F,")
	print(code)
	print("\n")
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				handleCommand(string(serialBuffer[:serialPos]))
			}
			serialPos = 0
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

func handleCommand(line string) {
	switch {
	case line == "R":
		reportSample()
	case len(line) > 2 && line[:2] == "P,":
		setPWM(line[2:])
	default:
		reportFault(faultBadCommand)
	}
}

// setPWM parses "<period>,<on>" and applies it. on is the output-high time.
func setPWM(args string) {
	comma := -1
	for i := 0; i < len(args); i++ {
		if args[i] == ',' {
			comma = i
			break
		}
	}
	if comma < 0 {
		reportFault(faultBadPWM)
		return
	}

	period, err := strconv.ParseUint(args[:comma], 10, 32)
	if err != nil || period == 0 {
		reportFault(faultBadPWM)
		return
	}
	on, err := strconv.ParseUint(args[comma+1:], 10, 32)
	if err != nil || on > period {
		reportFault(faultBadPWM)
		return
	}

	if uint32(period) != periodUs {
		if err := PWM_LAMP.SetPeriod(period * 1000); err != nil {
			reportFault(faultBadPWM)
			return
		}
		periodUs = uint32(period)
	}

	top := uint64(PWM_LAMP.Top())
	PWM_LAMP.Set(lampChannel, uint32(top*on/period))
}
