package mapping

import "math"

// projectComposite adds fields read from related entities. A related entity
// that is missing or non-numeric projects as unknown.
func projectComposite(tag Tag, f Fields, cfg Config, states Reader) {
	if states == nil {
		return
	}

	if cfg.BatteryEntity != "" {
		f[FieldBatPercentRemaining] = nil
		if snap, ok := states.Get(cfg.BatteryEntity); ok {
			if pct, ok := numericState(snap); ok {
				// Half-percent units.
				f[FieldBatPercentRemaining] = clamp(int(math.Round(pct*2)), 0, 200)
			}
		}
	}

	if tag == TagTemperatureSensor && cfg.HumidityEntity != "" {
		f[FieldHumidity] = nil
		if snap, ok := states.Get(cfg.HumidityEntity); ok {
			f[FieldHumidity] = humidityValue(snap)
		}
	}
}
