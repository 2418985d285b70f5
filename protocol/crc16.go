package protocol

import "github.com/snksoft/crc"

// crc16Params is CRC-16/MCRF4XX, the checksum used on the host link.
var crc16Params = &crc.Parameters{
	Width:      16,
	Polynomial: 0x1021,
	ReflectIn:  true,
	ReflectOut: true,
	Init:       0xFFFF,
	FinalXor:   0x0000,
}

var crc16Table = crc.NewTable(crc16Params)

// CRC16 returns the frame checksum over data. It is transmitted high byte first.
func CRC16(data []byte) uint16 {
	c := crc16Table.InitCrc()
	c = crc16Table.UpdateCrc(c, data)
	return crc16Table.CRC16(c)
}
