package mapping

// Field keys.
const (
	FieldReachable = "bridgedDeviceBasicInformation.reachable"

	FieldOnOff              = "onOff.onOff"
	FieldCurrentLevel       = "levelControl.currentLevel"
	FieldColorTempMireds    = "colorControl.colorTemperatureMireds"
	FieldColorTempMinMireds = "colorControl.colorTempPhysicalMinMireds"
	FieldColorTempMaxMireds = "colorControl.colorTempPhysicalMaxMireds"

	FieldFanMode        = "fanControl.fanMode"
	FieldPercentCurrent = "fanControl.percentCurrent"
	FieldPercentSetting = "fanControl.percentSetting"
	FieldSpeedCurrent   = "fanControl.speedCurrent"
	FieldSpeedSetting   = "fanControl.speedSetting"

	FieldTemperature = "temperatureMeasurement.measuredValue"
	FieldHumidity    = "relativeHumidityMeasurement.measuredValue"
	FieldIlluminance = "illuminanceMeasurement.measuredValue"
	FieldAirQuality  = "airQuality.airQuality"
	FieldPM25        = "pm25ConcentrationMeasurement.measuredValue"
	FieldPM10        = "pm10ConcentrationMeasurement.measuredValue"
	FieldCO2         = "carbonDioxideConcentrationMeasurement.measuredValue"
	FieldTVOC        = "totalVolatileOrganicCompoundsConcentrationMeasurement.measuredValue"

	FieldStateValue = "booleanState.stateValue"
	FieldOccupancy  = "occupancySensing.occupancy"
	FieldSmokeState = "smokeCoAlarm.smokeState"
	FieldCOState    = "smokeCoAlarm.coState"

	FieldLiftPercent100ths       = "windowCovering.currentPositionLiftPercent100ths"
	FieldTargetLiftPercent100ths = "windowCovering.targetPositionLiftPercent100ths"
	FieldOperationalStatus       = "windowCovering.operationalStatus"

	FieldLockState = "doorLock.lockState"

	FieldBatPercentRemaining = "powerSource.batPercentRemaining"
)

// Fan modes.
const (
	FanModeOff = 0
	FanModeOn  = 4
)

// Smoke/CO alarm states.
const (
	AlarmNormal   = 0
	AlarmWarning  = 1
	AlarmCritical = 2
)

// Door lock states.
const (
	LockNotFullyLocked = 0
	LockLocked         = 1
	LockUnlocked       = 2
)

// Window covering operational status.
const (
	CoveringStopped = 0
	CoveringOpening = 1
	CoveringClosing = 2
)

// Air quality classes.
const (
	AirQualityUnknown = iota
	AirQualityGood
	AirQualityFair
	AirQualityModerate
	AirQualityPoor
	AirQualityVeryPoor
	AirQualityExtremelyPoor
)

// Occupancy bitmap value for "occupied".
const OccupancyOccupied = 1
