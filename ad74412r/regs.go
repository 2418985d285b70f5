// Package ad74412r holds the register map, SPI framing and unit
// conversions of the AD74412R quad-channel analog front-end.
package ad74412r

// Register addresses. Per-channel registers occupy four consecutive
// addresses starting at the base, one per channel slot.
const (
	RegNop          = 0x00
	RegChFuncSetup  = 0x01
	RegAdcConfig    = 0x05
	RegDinConfig    = 0x09
	RegGpoParData   = 0x0D
	RegGpoConfig    = 0x0E
	RegOutputConfig = 0x12
	RegDacCode      = 0x16
	RegDacClrCode   = 0x1A
	RegDacActive    = 0x1E
	RegDinThresh    = 0x22
	RegAdcConvCtrl  = 0x23
	RegDiagAssign   = 0x24
	RegDinCompOut   = 0x25
	RegAdcResult    = 0x26
	RegDiagResult   = 0x2A
	RegAlertStatus  = 0x2E
	RegLiveStatus   = 0x2F
	RegAlertMask    = 0x3C
	RegReadSelect   = 0x41
	RegThermRst     = 0x43
	RegCmdKey       = 0x44
	RegScratch      = 0x45
	RegSiliconRev   = 0x46
)

// Channels per chip.
const Slots = 4

// CH_FUNC_SETUP codes.
const (
	FuncHighImpedance  = 0x0
	FuncVoltageOut     = 0x1
	FuncCurrentOut     = 0x2
	FuncVoltageIn      = 0x3
	FuncCurrentInExt   = 0x4
	FuncCurrentInLoop  = 0x5
	FuncResistance     = 0x6
	FuncDigitalInLogic = 0x7
	FuncDigitalInLoop  = 0x8
)

// ADC_CONFIG fields.
const (
	AdcMuxShift      = 0
	AdcMuxMask       = 0x3
	AdcPullDownBit   = 1 << 2
	AdcRejShift      = 3
	AdcRejMask       = 0x3
	AdcRangeShift    = 5
	AdcRangeMask     = 0x7
	AdcRejEnabled    = 0x0 // 20 SPS, 50/60 Hz rejection
	AdcRejDisabled   = 0x1 // 4.8 kSPS
	AdcMuxLfToAgnd   = 0x0
	AdcMuxSense100R  = 0x1
	AdcMuxSenseToGnd = 0x2
	AdcMuxLfToSense  = 0x3
)

// ADC range codes.
const (
	Range0To10V      = 0x0
	Range0To2V5Ext   = 0x1
	RangeMinus2V5To0 = 0x2
	RangePm2V5       = 0x3
	RangePm10V       = 0x4
)

// DIN_CONFIG fields.
const (
	DinDebounceTimeMask = 0x1F
	DinDebounceModeBit  = 1 << 5
	DinSinkShift        = 6
	DinSinkMask         = 0xF
	DinCompEnableBit    = 1 << 12
	DinInvertBit        = 1 << 11
	DinFilterBit        = 1 << 10
)

// DIN_THRESH fields, shared by all channels of a chip.
const (
	DinThreshModeBit   = 1 << 0 // 1: fixed threshold, 0: scaled to AVDD
	DinCompThreshShift = 1
	DinCompThreshMask  = 0x1F
)

// GPO_CONFIG fields.
const (
	GpoSelectMask    = 0x7
	GpoSelPullDown   = 0x0
	GpoSelLogic      = 0x1
	GpoSelParallel   = 0x2
	GpoSelComparator = 0x3
	GpoSelHighZ      = 0x4
	GpoDataBit       = 1 << 3
)

// OUTPUT_CONFIG fields.
const (
	OutCurrentLimitBit = 1 << 0
	OutClearEnableBit  = 1 << 1
	OutSlewRateShift   = 2
	OutSlewRateMask    = 0x3
	OutSlewStepShift   = 4
	OutSlewStepMask    = 0x3
	OutSlewEnableShift = 6
	OutSlewEnableMask  = 0x3
	OutSlewLinear      = 0x1
)

// ADC_CONV_CTRL fields.
const (
	ConvChEnShift       = 0
	ConvDiagEnShift     = 4
	ConvSeqShift        = 8
	ConvSeqMask         = 0x3 << ConvSeqShift
	ConvSeqIdle         = 0x0 << ConvSeqShift
	ConvSeqSingle       = 0x1 << ConvSeqShift
	ConvSeqContinuous   = 0x2 << ConvSeqShift
	ConvSeqPowerDown    = 0x3 << ConvSeqShift
	ConvRateDiagFastBit = 1 << 10
)

// DIAG_ASSIGN sources, one nibble per slot.
const (
	DiagAgnd     = 0x0
	DiagTemp     = 0x1
	DiagDvcc     = 0x2
	DiagAvcc     = 0x3
	DiagLdo1V8   = 0x4
	DiagAvdd     = 0x5
	DiagAvss     = 0x6
	DiagLvin     = 0x7
	DiagDoVdd    = 0x8
	DiagSenseP   = 0x9
	DiagSenseN   = 0xA
	DiagSenseLow = 0xB
)

// LIVE_STATUS bits.
const (
	LiveViErrShift = 0
	LiveAdcBusy    = 1 << 13
	LiveAdcDataRdy = 1 << 14
)

// ALERT_STATUS bits. VI_ERR_A..D sit at 12..15.
const (
	AlertResetOccurred = 1 << 0
	AlertCalMemErr     = 1 << 1
	AlertSpiCrcErr     = 1 << 2
	AlertSpiSclkErr    = 1 << 3
	AlertAdcSatErr     = 1 << 4
	AlertAdcConvErr    = 1 << 5
	AlertAldo1V8Err    = 1 << 6
	AlertDvccErr       = 1 << 7
	AlertAvddErr       = 1 << 8
	AlertAldo5VErr     = 1 << 9
	AlertChargePumpErr = 1 << 10
	AlertHiTempErr     = 1 << 11
	AlertViErrShift    = 12
)

// CMD_KEY sequences.
const (
	KeySoftReset1 = 0x15FA
	KeySoftReset2 = 0xAF51
	KeyLdac       = 0x953A
)

// THERM_RST enables the thermal shutdown reset.
const ThermRstEnable = 1 << 0

// DacMax is the full scale code of the 13 bit DAC.
const DacMax = 0x1FFF

// AdcMax is the full scale code of the 16 bit ADC.
const AdcMax = 0xFFFF
