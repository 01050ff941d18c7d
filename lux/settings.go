package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/state"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
// Changes are saved immediately and take effect on the next connect.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createControlTab(state),
		createStartupTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func (state *appState) saveConfig() {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := board.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected
				}
				state.cfg.Serial.Port = selectedPort
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				state.cfg.Serial.BaudRate = baud
			}
			state.saveConfig()
		},
	}

	return container.NewTabItem("Serial", form)
}

// createControlTab creates the sampling, filter, controller and PWM tab.
func createControlTab(state *appState) *container.TabItem {
	c := state.cfg

	periodEntry := widget.NewEntry()
	periodEntry.SetText(c.Sampler.Period.String())

	sizeEntry := widget.NewEntry()
	sizeEntry.SetText(strconv.Itoa(c.Filter.Size))

	deviationEntry := widget.NewEntry()
	deviationEntry.SetText(strconv.Itoa(c.Filter.DeviationPercent))

	kpEntry := widget.NewEntry()
	kpEntry.SetText(fmt.Sprintf("%.3f", c.Controller.Kp))

	tiEntry := widget.NewEntry()
	tiEntry.SetText(fmt.Sprintf("%.3f", c.Controller.Ti))

	lowEntry := widget.NewEntry()
	lowEntry.SetText(strconv.Itoa(c.Controller.IntegralLow))

	highEntry := widget.NewEntry()
	highEntry.SetText(strconv.Itoa(c.Controller.IntegralHigh))

	pwmEntry := widget.NewEntry()
	pwmEntry.SetText(strconv.FormatUint(uint64(c.PWM.PeriodUs), 10))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Sample Period", Widget: periodEntry},
			{Text: "Filter Size", Widget: sizeEntry},
			{Text: "Filter Band (%)", Widget: deviationEntry},
			{Text: "Kp", Widget: kpEntry},
			{Text: "Ti", Widget: tiEntry},
			{Text: "Integral Low", Widget: lowEntry},
			{Text: "Integral High", Widget: highEntry},
			{Text: "PWM Period (µs)", Widget: pwmEntry},
		},
		OnSubmit: func() {
			if p, err := time.ParseDuration(periodEntry.Text); err == nil && p > 0 {
				c.Sampler.Period = p
			}
			if n, err := strconv.Atoi(sizeEntry.Text); err == nil && n > 0 {
				c.Filter.Size = n
			}
			if n, err := strconv.Atoi(deviationEntry.Text); err == nil && n >= 0 {
				c.Filter.DeviationPercent = n
			}
			if v, err := strconv.ParseFloat(kpEntry.Text, 32); err == nil {
				c.Controller.Kp = float32(v)
			}
			if v, err := strconv.ParseFloat(tiEntry.Text, 32); err == nil {
				c.Controller.Ti = float32(v)
			}
			if n, err := strconv.Atoi(lowEntry.Text); err == nil {
				c.Controller.IntegralLow = n
			}
			if n, err := strconv.Atoi(highEntry.Text); err == nil {
				c.Controller.IntegralHigh = n
			}
			if n, err := strconv.ParseUint(pwmEntry.Text, 10, 32); err == nil && n > 0 {
				c.PWM.PeriodUs = uint32(n)
			}
			state.saveConfig()
		},
	}

	return container.NewTabItem("Control", form)
}

// createStartupTab creates the tab for the state the loop boots with.
func createStartupTab(app *appState) *container.TabItem {
	modeSelect := widget.NewSelect([]string{state.ModeManual.String(), state.ModeAutomatic.String()}, nil)
	modeSelect.SetSelected(app.cfg.State.InitialMode)

	intensityEntry := widget.NewEntry()
	intensityEntry.SetText(strconv.Itoa(app.cfg.State.InitialIntensity))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Initial Mode", Widget: modeSelect},
			{Text: "Initial Intensity (%)", Widget: intensityEntry},
		},
		OnSubmit: func() {
			if modeSelect.Selected != "" {
				app.cfg.State.InitialMode = modeSelect.Selected
			}
			if n, err := strconv.Atoi(intensityEntry.Text); err == nil {
				app.cfg.State.InitialIntensity = n
			}
			app.saveConfig()
		},
	}

	return container.NewTabItem("Startup", form)
}

// createMockTab creates the simulated board configuration tab.
func createMockTab(state *appState) *container.TabItem {
	m := &state.cfg.Mock

	ambientEntry := widget.NewEntry()
	ambientEntry.SetText(fmt.Sprintf("%.3f", m.Ambient))

	gainEntry := widget.NewEntry()
	gainEntry.SetText(fmt.Sprintf("%.3f", m.LampGain))

	noiseLevelEntry := widget.NewEntry()
	noiseLevelEntry.SetText(fmt.Sprintf("%.4f", m.NoiseLevel))

	lagEntry := widget.NewEntry()
	lagEntry.SetText(m.Lag.String())

	latencyEntry := widget.NewEntry()
	latencyEntry.SetText(m.ReadLatency.String())

	failEntry := widget.NewEntry()
	failEntry.SetText(strconv.Itoa(m.FailEvery))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Ambient (0..1)", Widget: ambientEntry},
			{Text: "Lamp Gain (0..1)", Widget: gainEntry},
			{Text: "Noise Level (0..1)", Widget: noiseLevelEntry},
			{Text: "Room Lag", Widget: lagEntry},
			{Text: "Read Latency", Widget: latencyEntry},
			{Text: "Fail Every N Reads", Widget: failEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(ambientEntry.Text, 64); err == nil {
				m.Ambient = v
			}
			if v, err := strconv.ParseFloat(gainEntry.Text, 64); err == nil {
				m.LampGain = v
			}
			if v, err := strconv.ParseFloat(noiseLevelEntry.Text, 64); err == nil {
				m.NoiseLevel = v
			}
			if d, err := time.ParseDuration(lagEntry.Text); err == nil {
				m.Lag = d
			}
			if d, err := time.ParseDuration(latencyEntry.Text); err == nil {
				m.ReadLatency = d
			}
			if n, err := strconv.Atoi(failEntry.Text); err == nil && n >= 0 {
				m.FailEvery = n
			}
			state.saveConfig()
		},
	}

	return container.NewTabItem("Mock", form)
}
