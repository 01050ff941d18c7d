package main

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/golux/pkg/board"
	"github.com/itohio/golux/pkg/pipeline"
	"github.com/itohio/golux/pkg/state"
)

// buttonPanel mirrors the four board buttons.
type buttonPanel struct {
	automatic *widget.Button
	manual    *widget.Button
	up        *widget.Button
	down      *widget.Button
	status    *widget.Label
}

func newButtonPanel(app *appState) *buttonPanel {
	press := func(mask board.ButtonMask) func() {
		return func() { handlePress(app, mask) }
	}

	return &buttonPanel{
		automatic: widget.NewButton("Auto", press(board.ButtonAutomatic)),
		manual:    widget.NewButton("Manual", press(board.ButtonManual)),
		up:        widget.NewButtonWithIcon("", theme.ContentAddIcon(), press(board.ButtonUp)),
		down:      widget.NewButtonWithIcon("", theme.ContentRemoveIcon(), press(board.ButtonDown)),
		status:    widget.NewLabel("disconnected"),
	}
}

func (p *buttonPanel) buttons() fyne.CanvasObject {
	return container.NewHBox(p.automatic, p.manual, p.down, p.up)
}

func (p *buttonPanel) setEnabled(enabled bool) {
	for _, btn := range []*widget.Button{p.automatic, p.manual, p.up, p.down} {
		if enabled {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
	if !enabled {
		p.status.SetText("disconnected")
	}
}

// update highlights the active mode. C and D only act in manual mode.
func (p *buttonPanel) update(act pipeline.Actuation) {
	auto := act.Mode == state.ModeAutomatic
	setImportance(p.automatic, auto)
	setImportance(p.manual, !auto)
	if auto {
		p.up.Disable()
		p.down.Disable()
	} else {
		p.up.Enable()
		p.down.Enable()
	}
	p.status.SetText(fmt.Sprintf("%s %d%%", act.Mode, act.Percent))
}

func setImportance(btn *widget.Button, active bool) {
	if active {
		btn.Importance = widget.HighImportance
	} else {
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}

// handlePress injects a button edge. The simulated board routes it through
// its own button callback like a real press.
func handlePress(app *appState, mask board.ButtonMask) {
	s := app.session
	if s == nil {
		return
	}
	if m, ok := s.board.(*board.Mock); ok {
		m.Press(mask)
		return
	}
	s.loop.Buttons.HandleEdge(mask)
}
