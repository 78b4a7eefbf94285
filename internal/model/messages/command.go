package messages

// IrrigationCommand is published on plant/{id}/irrigation/cmd when auto mode
// decides a dose. Firmware converts dose_mL to a pump runtime.
type IrrigationCommand struct {
	DoseML    float64 `json:"dose_mL"`
	Source    string  `json:"source"`
	Timestamp float64 `json:"timestamp"` // unix seconds
}

// CommandSourceETKC tags commands issued by the ET controller.
const CommandSourceETKC = "etkc"
