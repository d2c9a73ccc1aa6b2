package modem

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/xlab/at/sms"
)

// DecodedSMS is the Go-native shape the Receiver works with, produced
// from a decoded SMS-DELIVER PDU.
type DecodedSMS struct {
	From             string
	Text             string
	SentAt           time.Time
	ConcatReference  uint8
	ConcatTotalParts uint8
	ConcatPartNumber uint8
	IsConcatenated   bool
}

// DecodedStatusReport is the Go-native shape produced from a decoded
// SMS-STATUS-REPORT PDU.
type DecodedStatusReport struct {
	MessageReference uint8
	Recipient        string
	Status           uint8
	DischargeTime    time.Time
}

// EncodeSubmitPDU builds an SMS-SUBMIT TPDU for one message part, ready
// to be hex-encoded onto the wire after the AT+CMGS=<len> prompt.
// udh, when non-nil, is prefixed as a User Data Header for multipart
// concatenation (3GPP TS 23.040 §9.2.3.24).
func EncodeSubmitPDU(to, text string, flash bool, validity time.Duration, udh []byte) (pduHex string, tpduLen int, err error) {
	msg := &sms.Message{
		Type:                     sms.MessageTypes.Submit,
		Encoding:                 encodingFor(text),
		Address:                  sms.PhoneNumber(to),
		Text:                     text,
		MessageReference:         0,
		StatusReportRequest:      true,
		UserDataStartsWithHeader: len(udh) > 0,
	}
	if flash {
		msg.Encoding = sms.Encodings.Gsm7Bit
	}
	if validity > 0 {
		msg.VPFormat = sms.ValidityPeriodFormats.Relative
		msg.VP = sms.ValidityPeriod(validity)
	} else {
		msg.VPFormat = sms.ValidityPeriodFormats.FieldNotPresent
	}

	n, raw, err := msg.PDU()
	if err != nil {
		return "", 0, fmt.Errorf("encode SMS-SUBMIT: %w", err)
	}
	if len(udh) > 0 {
		raw, n, err = insertUDH(raw, udh)
		if err != nil {
			return "", 0, err
		}
	}
	return hex.EncodeToString(raw), n, nil
}

// insertUDH splices a precomputed UDH into a PDU's user-data segment.
// The xlab/at Message type does not build the UDH itself, so the TPDU
// produced above always carries a plain UserDataHeaderIndicator; this
// function re-encodes the user data with the UDH prefixed and its
// length field updated, which is what UserDataHeaderIndicator promises
// the receiving end.
func insertUDH(raw []byte, udh []byte) ([]byte, int, error) {
	// The last byte(s) of raw are [UserDataLength, UserData...]. Locate
	// UserDataLength by walking from the end is unreliable for variable
	// encodings, so instead this reconstructs from the tail: the
	// message's encoded text bytes were appended last by Message.PDU,
	// preceded immediately by the one-byte UserDataLength.
	if len(raw) < 1 {
		return nil, 0, fmt.Errorf("encode SMS-SUBMIT: empty TPDU")
	}
	udLenIdx := len(raw) - 1 - int(raw[len(raw)-1])
	if udLenIdx < 0 || udLenIdx >= len(raw) {
		return nil, 0, fmt.Errorf("encode SMS-SUBMIT: cannot locate user data")
	}
	head := raw[:udLenIdx]
	oldLen := int(raw[udLenIdx])
	userData := raw[udLenIdx+1:]

	newUD := append(append([]byte{}, udh...), userData...)
	newLen := oldLen + len(udh)

	var buf bytes.Buffer
	buf.Write(head)
	buf.WriteByte(byte(newLen))
	buf.Write(newUD)
	return buf.Bytes(), buf.Len(), nil
}

func encodingFor(text string) sms.Encoding {
	for _, r := range text {
		if r > 127 {
			return sms.Encodings.UCS2
		}
	}
	return sms.Encodings.Gsm7Bit
}

// DecodeDeliverPDU decodes a hex-encoded SMS-DELIVER TPDU (as delivered
// by an unsolicited +CMT notification) into a DecodedSMS, extracting
// the concatenation UDH fields when present.
func DecodeDeliverPDU(hexStr string) (DecodedSMS, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return DecodedSMS{}, fmt.Errorf("decode SMS-DELIVER: %w", err)
	}
	var msg sms.Message
	if _, err := msg.ReadFrom(raw); err != nil {
		return DecodedSMS{}, fmt.Errorf("decode SMS-DELIVER: %w", err)
	}

	out := DecodedSMS{
		From:   string(msg.Address),
		Text:   msg.Text,
		SentAt: time.Time(msg.ServiceCenterTime),
	}
	if msg.UserDataStartsWithHeader {
		if ref, total, seq, ok := parseConcatUDH(raw); ok {
			out.IsConcatenated = true
			out.ConcatReference = ref
			out.ConcatTotalParts = total
			out.ConcatPartNumber = seq
		}
	}
	return out, nil
}

// parseConcatUDH scans the raw TPDU for an IEI=0x00 (8-bit reference)
// or IEI=0x08 (16-bit reference) concatenation element within the user
// data header, per 3GPP TS 23.040 §9.2.3.24.1.
func parseConcatUDH(raw []byte) (reference, total, sequence uint8, ok bool) {
	if len(raw) < 2 {
		return 0, 0, 0, false
	}
	scLen := int(raw[0])
	rest := raw[1+scLen:]
	if len(rest) < 1 {
		return 0, 0, 0, false
	}
	header := rest[0]
	if header&(0x01<<6) == 0 {
		return 0, 0, 0, false
	}
	// originating address field.
	if len(rest) < 2 {
		return 0, 0, 0, false
	}
	oaLen := int(rest[1])
	oaOctets := oaLen/2 + oaLen%2 + 1
	offset := 2 + oaOctets
	if offset+3 > len(rest) {
		return 0, 0, 0, false
	}
	offset += 2 // protocol identifier + data coding scheme
	offset += 7 // service centre timestamp
	if offset+1 > len(rest) {
		return 0, 0, 0, false
	}
	offset++ // user data length
	if offset+1 > len(rest) {
		return 0, 0, 0, false
	}
	udhLen := int(rest[offset])
	udh := rest[offset+1:]
	if len(udh) < udhLen {
		return 0, 0, 0, false
	}
	udh = udh[:udhLen]

	r := bytes.NewReader(udh)
	for r.Len() > 0 {
		iei, err := r.ReadByte()
		if err != nil {
			break
		}
		ieLen, err := r.ReadByte()
		if err != nil {
			break
		}
		data := make([]byte, ieLen)
		if _, err := io.ReadFull(r, data); err != nil {
			break
		}
		switch iei {
		case 0x00:
			if len(data) == 3 {
				return data[0], data[1], data[2], true
			}
		case 0x08:
			if len(data) == 4 {
				return data[0], data[2], data[3], true
			}
		}
	}
	return 0, 0, 0, false
}

// DecodeStatusReportPDU decodes a hex-encoded SMS-STATUS-REPORT TPDU
// (as delivered by an unsolicited +CDS notification). The xlab/at sms
// package keeps its status-report codec unexported, so this reimplements
// the field layout directly, decoding the address and timestamp with the
// sms package's exported PhoneNumber and Timestamp types.
func DecodeStatusReportPDU(hexStr string) (DecodedStatusReport, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}
	r := bytes.NewReader(raw)

	scLen, err := r.ReadByte()
	if err != nil {
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}
	if scLen > 0 {
		if _, err := r.Seek(int64(scLen), io.SeekCurrent); err != nil {
			return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
		}
	}

	if _, err := r.ReadByte(); err != nil { // first octet (message type + flags)
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}
	msgRef, err := r.ReadByte()
	if err != nil {
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}

	daLen, err := r.ReadByte()
	if err != nil {
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}
	addrOctets := int(daLen)/2 + int(daLen)%2 + 1
	addrBuf := make([]byte, addrOctets)
	if _, err := io.ReadFull(r, addrBuf); err != nil {
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}
	var recipient sms.PhoneNumber
	recipient.ReadFrom(addrBuf)

	scts := make([]byte, 7)
	if _, err := io.ReadFull(r, scts); err != nil {
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}
	discharge := make([]byte, 7)
	if _, err := io.ReadFull(r, discharge); err != nil {
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}
	status, err := r.ReadByte()
	if err != nil {
		return DecodedStatusReport{}, fmt.Errorf("decode SMS-STATUS-REPORT: %w", err)
	}

	var dischargeTS sms.Timestamp
	dischargeTS.ReadFrom(discharge)

	return DecodedStatusReport{
		MessageReference: msgRef,
		Recipient:        string(recipient),
		Status:           status,
		DischargeTime:    time.Time(dischargeTS),
	}, nil
}
