//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3000 // Full-scale input in millivolts
	ADC_RESOLUTION   = 10   // Reported resolution in bits (0-1023)

	// PWM defaults until the host sends a P command. The lamp is
	// active-low, so the output idles high (lamp off).
	PWM_DEFAULT_PERIOD_US = 1000

	// Buttons are active-low with pull-ups.
	BUTTON_DEBOUNCE_MS = 20

	// Lamp driver pin
	PIN_LAMP = machine.D7

	// Light sensor
	PIN_SENSOR = machine.A1

	// Buttons A-D
	PIN_BUTTON_AUTOMATIC = machine.D1
	PIN_BUTTON_MANUAL    = machine.D2
	PIN_BUTTON_UP        = machine.D3
	PIN_BUTTON_DOWN      = machine.D4

	// Serial configuration. Traffic is one "S,<micros>,<raw>" line per
	// second plus button edges, far below the line rate.
	UART_BAUD_RATE = 115200
)

var PWM_LAMP = machine.TCC0
