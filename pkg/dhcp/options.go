package dhcp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

type OptionCode uint8

const (
	OptionPad                  OptionCode = 0
	OptionSubnetMask           OptionCode = 1
	OptionRouterAddress        OptionCode = 3
	OptionDNSServers           OptionCode = 6
	OptionHostName             OptionCode = 12
	OptionRequestedIPAddress   OptionCode = 50
	OptionIPAddressLeaseTime   OptionCode = 51
	OptionDHCPMessageType      OptionCode = 53
	OptionServerIdentifier     OptionCode = 54
	OptionParameterRequestList OptionCode = 55
	OptionClientIdentifier     OptionCode = 61
	OptionEndOption            OptionCode = 255
)

type Option struct {
	Code  OptionCode
	Value []byte
}

type Options []Option

func (o Options) Encode() ([]byte, error) {
	var buf bytes.Buffer

	for _, opt := range o {
		if opt.Code == OptionEndOption {
			continue
		}

		if len(opt.Value) > 255 {
			return nil, fmt.Errorf("option %d value too long: %d bytes", opt.Code, len(opt.Value))
		}

		if err := buf.WriteByte(byte(opt.Code)); err != nil {
			return nil, err
		}
		if err := buf.WriteByte(uint8(len(opt.Value))); err != nil {
			return nil, err
		}
		if _, err := buf.Write(opt.Value); err != nil {
			return nil, err
		}
	}

	if err := buf.WriteByte(byte(OptionEndOption)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func DecodeOptions(data []byte) (Options, error) {
	var options Options
	i := 0
	for i < len(data) {
		code := OptionCode(data[i])
		i++
		if code == OptionEndOption {
			break
		}
		if code == OptionPad {
			continue
		}
		if i >= len(data) {
			return nil, fmt.Errorf("missing length for option %d", code)
		}
		length := int(data[i])
		i++
		if i+length > len(data) {
			return nil, fmt.Errorf("option %d length goes out of bounds", code)
		}
		value := data[i : i+length]
		i += length
		options = append(options, Option{Code: code, Value: value})
	}
	return options, nil
}

func (o *Options) Add(code OptionCode, value interface{}) {
	var val []byte
	switch v := value.(type) {
	case uint8:
		val = []byte{v}
	case uint16:
		val = make([]byte, 2)
		binary.BigEndian.PutUint16(val, v)
	case uint32:
		val = make([]byte, 4)
		binary.BigEndian.PutUint32(val, v)
	case int:
		val = make([]byte, 4)
		binary.BigEndian.PutUint32(val, uint32(v))
	case []byte:
		val = v
	case string:
		val = []byte(v)
	case net.IP:
		if ip4 := v.To4(); ip4 != nil {
			val = ip4
		} else {
			val = v.To16()
		}
	case []net.IP:
		var buf bytes.Buffer
		for _, ip := range v {
			if ip4 := ip.To4(); ip4 != nil {
				buf.Write(ip4)
			} else {
				buf.Write(ip.To16())
			}
		}
		val = buf.Bytes()
	default:
		log.Errorf("Unknown option type: %T with value: %v", value, value)
		return
	}
	*o = append(*o, Option{Code: code, Value: val})
}

func (o Options) get(code OptionCode) []byte {
	for _, opt := range o {
		if opt.Code == code {
			return opt.Value
		}
	}
	return nil
}

func (o Options) GetMessageType() uint8 {
	if v := o.get(OptionDHCPMessageType); len(v) == 1 {
		return v[0]
	}
	return 0
}

func (o Options) GetRequestedIP() net.IP {
	if v := o.get(OptionRequestedIPAddress); len(v) == 4 {
		return net.IP(v)
	}
	return nil
}

func (o Options) GetHostname() string {
	return string(o.get(OptionHostName))
}
