package mapping

import (
	"math"
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

const maxIlluminance = 0xFFFE

var (
	temperatureSensor = register(Variant{
		tag:        TagTemperatureSensor,
		deviceType: DeviceType{Code: 0x0302, Name: "TemperatureSensor"},
		clusters:   []string{"temperatureMeasurement"},
		project:    projectTemperature,
	})

	humiditySensor = register(Variant{
		tag:        TagHumiditySensor,
		deviceType: DeviceType{Code: 0x0307, Name: "HumiditySensor"},
		clusters:   []string{"relativeHumidityMeasurement"},
		project:    projectHumidity,
	})

	lightSensor = register(Variant{
		tag:        TagLightSensor,
		deviceType: DeviceType{Code: 0x0106, Name: "LightSensor"},
		clusters:   []string{"illuminanceMeasurement"},
		project:    projectIlluminance,
	})

	airQualitySensor = register(Variant{
		tag:        TagAirQualitySensor,
		deviceType: DeviceType{Code: 0x002C, Name: "AirQualitySensor"},
		clusters:   []string{"airQuality"},
		project:    projectAirQuality,
	})
)

// airQualityClasses share the air-quality representation. Order matters
// only for documentation; membership is what selects.
var airQualityClasses = []string{
	"aqi",
	"pm25",
	"pm10",
	"carbon_dioxide",
	"volatile_organic_compounds",
	"volatile_organic_compounds_parts",
}

// selectSensor applies the fixed priority: temperature, humidity,
// illuminance, then the air-quality classes.
func selectSensor(snap entity.Snapshot) (Variant, bool) {
	class := snap.DeviceClass()
	switch {
	case class == "temperature":
		return temperatureSensor, true
	case class == "humidity":
		return humiditySensor, true
	case class == "illuminance":
		return lightSensor, true
	case slices.Contains(airQualityClasses, class):
		return airQualitySensor, true
	default:
		return Variant{}, false
	}
}

// numericState returns the state as a number, or false for non-numeric
// states such as "unknown" and "unavailable".
func numericState(snap entity.Snapshot) (float64, bool) {
	if !snap.IsAvailable() {
		return 0, false
	}
	return snap.StateFloat()
}

func projectTemperature(snap entity.Snapshot) Fields {
	return Fields{FieldTemperature: temperatureValue(snap)}
}

// temperatureValue is hundredths of a degree Celsius, converting from
// Fahrenheit when the unit says so.
func temperatureValue(snap entity.Snapshot) any {
	v, ok := numericState(snap)
	if !ok {
		return nil
	}
	if unit := snap.String("unit_of_measurement"); strings.HasSuffix(unit, "F") {
		v = (v - 32) * 5 / 9
	}
	return int(math.Round(v * 100))
}

func projectHumidity(snap entity.Snapshot) Fields {
	return Fields{FieldHumidity: humidityValue(snap)}
}

// humidityValue is hundredths of a percent.
func humidityValue(snap entity.Snapshot) any {
	v, ok := numericState(snap)
	if !ok {
		return nil
	}
	return clamp(int(math.Round(v*100)), 0, 10000)
}

func projectIlluminance(snap entity.Snapshot) Fields {
	v, ok := numericState(snap)
	if !ok {
		return Fields{FieldIlluminance: nil}
	}
	return Fields{FieldIlluminance: LuxToIlluminance(v)}
}

// LuxToIlluminance encodes lux as 10000*log10(lux)+1; 0 means too dark to measure.
func LuxToIlluminance(lux float64) int {
	if lux <= 0 {
		return 0
	}
	return clamp(int(math.Round(10000*math.Log10(lux)+1)), 1, maxIlluminance)
}

func projectAirQuality(snap entity.Snapshot) Fields {
	class := snap.DeviceClass()
	v, ok := numericState(snap)

	f := Fields{FieldAirQuality: AirQualityUnknown}
	if class == "aqi" && ok {
		f[FieldAirQuality] = ClassifyAQI(v)
	}

	var key string
	switch class {
	case "pm25":
		key = FieldPM25
	case "pm10":
		key = FieldPM10
	case "carbon_dioxide":
		key = FieldCO2
	case "volatile_organic_compounds", "volatile_organic_compounds_parts":
		key = FieldTVOC
	}
	if key != "" {
		if ok {
			f[key] = v
		} else {
			f[key] = nil
		}
	}
	return f
}

// ClassifyAQI maps a US AQI value onto the air quality classes.
func ClassifyAQI(aqi float64) int {
	switch {
	case aqi < 0:
		return AirQualityUnknown
	case aqi <= 50:
		return AirQualityGood
	case aqi <= 100:
		return AirQualityFair
	case aqi <= 150:
		return AirQualityModerate
	case aqi <= 200:
		return AirQualityPoor
	case aqi <= 300:
		return AirQualityVeryPoor
	default:
		return AirQualityExtremelyPoor
	}
}
