package dhcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

const (
	MessageTypeDiscover = 1
	MessageTypeOffer    = 2
	MessageTypeRequest  = 3
	MessageTypeDecline  = 4
	MessageTypeAck      = 5
	MessageTypeNak      = 6
	MessageTypeRelease  = 7
	MessageTypeInform   = 8
)

const (
	OpCodeRequest = 1
	OpCodeReply   = 2
)

// fixed BOOTP header length before the options field
const headerLen = 240

var MagicCookie = []byte{0x63, 0x82, 0x53, 0x63}

type Message struct {
	OpCode  uint8
	HType   uint8
	HLen    uint8
	Hops    uint8
	XID     uint32
	Secs    uint16
	Flags   uint16
	CIAddr  net.IP
	YIAddr  net.IP
	SIAddr  net.IP
	GIAddr  net.IP
	CHAddr  net.HardwareAddr
	SName   [64]byte
	File    [128]byte
	Options Options
}

func NewMessage() *Message {
	return &Message{
		OpCode:  OpCodeReply,
		HType:   1,                // ethernet
		HLen:    6,                // MAC address length
		CHAddr:  make([]byte, 16), // client hardware address
		Options: make(Options, 0),
	}
}

func (m *Message) Encode() ([]byte, error) {
	var buf bytes.Buffer

	for _, field := range []interface{}{m.OpCode, m.HType, m.HLen, m.Hops, m.XID, m.Secs, m.Flags} {
		if err := binary.Write(&buf, binary.BigEndian, field); err != nil {
			return nil, err
		}
	}

	writeIP4(&buf, m.CIAddr)
	writeIP4(&buf, m.YIAddr)
	writeIP4(&buf, m.SIAddr)
	writeIP4(&buf, m.GIAddr)

	chaddr := make([]byte, 16)
	copy(chaddr, m.CHAddr)
	for _, slice := range [][]byte{chaddr, m.SName[:], m.File[:]} {
		if _, err := buf.Write(slice); err != nil {
			return nil, err
		}
	}

	if _, err := buf.Write(MagicCookie); err != nil {
		return nil, err
	}

	options, err := m.Options.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := buf.Write(options); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < headerLen {
		return nil, errors.New("DHCP message too short")
	}

	if !bytes.Equal(data[236:240], MagicCookie) {
		return nil, errors.New("invalid or missing DHCP magic cookie")
	}

	m := &Message{
		OpCode: data[0],
		HType:  data[1],
		HLen:   data[2],
		Hops:   data[3],
		XID:    binary.BigEndian.Uint32(data[4:8]),
		Secs:   binary.BigEndian.Uint16(data[8:10]),
		Flags:  binary.BigEndian.Uint16(data[10:12]),
		CIAddr: net.IP(append([]byte(nil), data[12:16]...)),
		YIAddr: net.IP(append([]byte(nil), data[16:20]...)),
		SIAddr: net.IP(append([]byte(nil), data[20:24]...)),
		GIAddr: net.IP(append([]byte(nil), data[24:28]...)),
	}

	if m.HLen > 16 {
		return nil, fmt.Errorf("invalid hardware address length: %d", m.HLen)
	}
	m.CHAddr = make(net.HardwareAddr, m.HLen)
	copy(m.CHAddr, data[28:28+int(m.HLen)])

	copy(m.SName[:], data[44:108])
	copy(m.File[:], data[108:236])

	options, err := DecodeOptions(data[headerLen:])
	if err != nil {
		return nil, err
	}
	m.Options = options

	return m, nil
}

func writeIP4(buf *bytes.Buffer, ip net.IP) {
	if ip4 := ip.To4(); ip4 != nil {
		buf.Write(ip4)
	} else {
		buf.Write([]byte{0, 0, 0, 0})
	}
}
