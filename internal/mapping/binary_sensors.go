package mapping

import "github.com/nerrad567/gray-logic-hub/internal/entity"

var (
	contactSensor = register(Variant{
		tag:        TagContactSensor,
		deviceType: DeviceType{Code: 0x0015, Name: "ContactSensor"},
		clusters:   []string{"booleanState"},
		project:    projectContact,
	})

	occupancySensor = register(Variant{
		tag:        TagOccupancySensor,
		deviceType: DeviceType{Code: 0x0107, Name: "OccupancySensor"},
		clusters:   []string{"occupancySensing"},
		project:    projectOccupancy,
	})

	smokeAlarm = register(Variant{
		tag:        TagSmokeAlarm,
		deviceType: DeviceType{Code: 0x0076, Name: "SmokeCoAlarm"},
		clusters:   []string{"smokeCoAlarm"},
		project:    projectSmoke,
	})

	coAlarm = register(Variant{
		tag:        TagCOAlarm,
		deviceType: DeviceType{Code: 0x0076, Name: "SmokeCoAlarm"},
		clusters:   []string{"smokeCoAlarm"},
		project:    projectCO,
	})

	waterLeakDetector = register(Variant{
		tag:        TagWaterLeakDetector,
		deviceType: DeviceType{Code: 0x0043, Name: "WaterLeakDetector"},
		clusters:   []string{"booleanState"},
		project:    projectWaterLeak,
	})
)

var binarySensorClasses = map[string]Variant{
	"door":            contactSensor,
	"window":          contactSensor,
	"garage_door":     contactSensor,
	"opening":         contactSensor,
	"motion":          occupancySensor,
	"occupancy":       occupancySensor,
	"presence":        occupancySensor,
	"smoke":           smokeAlarm,
	"carbon_monoxide": coAlarm,
	"moisture":        waterLeakDetector,
}

func selectBinarySensor(snap entity.Snapshot) (Variant, bool) {
	v, ok := binarySensorClasses[snap.DeviceClass()]
	return v, ok
}

// projectContact: the platform reports "on" for open, the protocol reports
// true for contact (closed).
func projectContact(snap entity.Snapshot) Fields {
	return Fields{FieldStateValue: snap.State != entity.StateOn}
}

func projectOccupancy(snap entity.Snapshot) Fields {
	occupancy := 0
	if isOn(snap) {
		occupancy = OccupancyOccupied
	}
	return Fields{FieldOccupancy: occupancy}
}

func alarmState(snap entity.Snapshot) int {
	if isOn(snap) {
		return AlarmWarning
	}
	return AlarmNormal
}

func projectSmoke(snap entity.Snapshot) Fields {
	return Fields{FieldSmokeState: alarmState(snap)}
}

func projectCO(snap entity.Snapshot) Fields {
	return Fields{FieldCOState: alarmState(snap)}
}

func projectWaterLeak(snap entity.Snapshot) Fields {
	return Fields{FieldStateValue: isOn(snap)}
}
