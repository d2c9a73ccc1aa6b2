package at

import (
	"fmt"
	"strconv"
	"strings"
)

// findFamilyLine returns the first line in response whose trimmed form
// starts with marker, and the remainder of that line after the marker.
func findFamilyLine(response, marker string) (string, bool) {
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, marker) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, marker)), true
		}
	}
	return "", false
}

func splitFields(rest string) []string {
	parts := strings.Split(rest, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseStrictInt(s, fieldName string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("missing %s", fieldName)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", fieldName)
	}
	return n, nil
}

// CMGSResult is the parsed reply to an AT+CMGS send command.
type CMGSResult struct {
	ReferenceID uint8
}

// ParseCMGS parses a "+CMGS: <ref>" reply.
func ParseCMGS(response string) (CMGSResult, error) {
	rest, ok := findFamilyLine(response, FamilyCMGS)
	if !ok {
		return CMGSResult{}, fmt.Errorf("no CMGS response found in buffer")
	}
	if rest == "" {
		return CMGSResult{}, fmt.Errorf("malformed CMGS response")
	}
	n, err := strconv.ParseUint(rest, 10, 8)
	if err != nil {
		return CMGSResult{}, fmt.Errorf("invalid CMGS message reference number")
	}
	return CMGSResult{ReferenceID: uint8(n)}, nil
}

// NetworkStatus is the parsed reply to AT+CREG?.
type NetworkStatus struct {
	Registration uint8
	Technology   uint8
}

// ParseCREG parses a "+CREG: <status>,<tech>" reply.
func ParseCREG(response string) (NetworkStatus, error) {
	rest, ok := findFamilyLine(response, FamilyCREG)
	if !ok {
		return NetworkStatus{}, fmt.Errorf("no CREG response found in buffer")
	}
	fields := splitFields(rest)
	if len(fields) < 2 {
		return NetworkStatus{}, fmt.Errorf("malformed CREG response")
	}
	reg, err := parseStrictInt(fields[0], "registration status")
	if err != nil {
		return NetworkStatus{}, err
	}
	tech, err := parseStrictInt(fields[1], "technology status")
	if err != nil {
		return NetworkStatus{}, err
	}
	return NetworkStatus{Registration: uint8(reg), Technology: uint8(tech)}, nil
}

// SignalStrength is the parsed reply to AT+CSQ.
type SignalStrength struct {
	RSSI int
	BER  int
}

// ParseCSQ parses a "+CSQ: <rssi>,<ber>" reply.
func ParseCSQ(response string) (SignalStrength, error) {
	rest, ok := findFamilyLine(response, FamilyCSQ)
	if !ok {
		return SignalStrength{}, fmt.Errorf("no CSQ response found in buffer")
	}
	fields := splitFields(rest)
	if len(fields) < 2 {
		return SignalStrength{}, fmt.Errorf("missing BER value")
	}
	rssi, err := parseStrictInt(fields[0], "RSSI value")
	if err != nil {
		return SignalStrength{}, err
	}
	ber, err := parseStrictInt(fields[1], "BER value")
	if err != nil {
		return SignalStrength{}, err
	}
	return SignalStrength{RSSI: rssi, BER: ber}, nil
}

// NetworkOperator is the parsed reply to AT+COPS?.
type NetworkOperator struct {
	Status int
	Format int
	Name   string
}

// ParseCOPS parses a '+COPS: <status>,<format>,"<name>"' reply.
func ParseCOPS(response string) (NetworkOperator, error) {
	rest, ok := findFamilyLine(response, FamilyCOPS)
	if !ok {
		return NetworkOperator{}, fmt.Errorf("no COPS response found in buffer")
	}
	fields := strings.SplitN(rest, ",", 3)
	if len(fields) < 2 {
		return NetworkOperator{}, fmt.Errorf("missing operator format")
	}
	status, err := parseStrictInt(strings.TrimSpace(fields[0]), "operator status")
	if err != nil {
		return NetworkOperator{}, err
	}
	format, err := parseStrictInt(strings.TrimSpace(fields[1]), "operator format")
	if err != nil {
		return NetworkOperator{}, err
	}
	if len(fields) < 3 {
		return NetworkOperator{}, fmt.Errorf("missing operator name")
	}
	nameField := strings.TrimSpace(fields[2])
	name, ok := unquote(nameField)
	if !ok {
		return NetworkOperator{}, fmt.Errorf("operator name not properly quoted")
	}
	return NetworkOperator{Status: status, Format: format, Name: name}, nil
}

func unquote(s string) (string, bool) {
	if !strings.HasPrefix(s, `"`) {
		return "", false
	}
	rest := strings.TrimPrefix(s, `"`)
	if !strings.HasSuffix(rest, `"`) {
		return "", false
	}
	return strings.TrimSuffix(rest, `"`), true
}

// ParseCSPN parses a '+CSPN: "<name>",<display>' reply.
func ParseCSPN(response string) (string, error) {
	rest, ok := findFamilyLine(response, FamilyCSPN)
	if !ok {
		return "", fmt.Errorf("no CSPN response found in buffer")
	}
	start := strings.Index(rest, `"`)
	if start < 0 {
		return "", fmt.Errorf("missing opening quote for operator name")
	}
	end := strings.LastIndex(rest, `"`)
	if end < 0 || end <= start {
		return "", fmt.Errorf("missing closing quote for operator name")
	}
	if end == start {
		return "", fmt.Errorf("invalid quoted operator name")
	}
	return rest[start+1 : end], nil
}

// BatteryLevel is the parsed reply to AT+CBC.
type BatteryLevel struct {
	Status   uint8
	Charge   uint8
	VoltageV float32
}

// ParseCBC parses a "+CBC: <status>,<charge>,<millivolts>" reply.
func ParseCBC(response string) (BatteryLevel, error) {
	rest, ok := findFamilyLine(response, FamilyCBC)
	if !ok {
		return BatteryLevel{}, fmt.Errorf("no CBC response found in buffer")
	}
	fields := splitFields(rest)
	if len(fields) < 3 {
		return BatteryLevel{}, fmt.Errorf("missing battery voltage")
	}
	status, err := parseStrictInt(fields[0], "battery status")
	if err != nil {
		return BatteryLevel{}, err
	}
	charge, err := parseStrictInt(fields[1], "battery charge")
	if err != nil {
		return BatteryLevel{}, err
	}
	millivolts, err := parseStrictInt(fields[2], "battery voltage")
	if err != nil {
		return BatteryLevel{}, err
	}
	return BatteryLevel{
		Status:   uint8(status),
		Charge:   uint8(charge),
		VoltageV: float32(millivolts) / 1000.0,
	}, nil
}

// FixStatus is the GNSS fix status reported by AT+CGPSSTATUS?.
type FixStatus int

const (
	FixStatusUnknown FixStatus = iota
	FixStatusNoFix
	FixStatus2D
	FixStatus3D
)

// ParseFixStatus accepts both the short ("2D Fix") and long
// ("Location 2D Fix") forms SIMCom modems report.
func ParseFixStatus(s string) (FixStatus, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "Location "))
	switch s {
	case "Unknown":
		return FixStatusUnknown, nil
	case "No Fix":
		return FixStatusNoFix, nil
	case "2D Fix":
		return FixStatus2D, nil
	case "3D Fix":
		return FixStatus3D, nil
	default:
		return FixStatusUnknown, fmt.Errorf("unrecognized fix status %q", s)
	}
}

// ParseCGPSStatus parses a "+CGPSSTATUS: Location 2D Fix" style reply.
func ParseCGPSStatus(response string) (FixStatus, error) {
	rest, ok := findFamilyLine(response, FamilyCGPSStatus)
	if !ok {
		return FixStatusUnknown, fmt.Errorf("no CGPSSTATUS response found in buffer")
	}
	_, after, found := strings.Cut(rest, ": ")
	body := rest
	if found {
		body = after
	}
	if strings.TrimSpace(body) == "" {
		return FixStatusUnknown, fmt.Errorf("missing CGPS status")
	}
	return ParseFixStatus(body)
}

// PositionReport is the decoded GNSS fix from +CGNSINF/+UGNSINF.
type PositionReport struct {
	RunStatus     int
	FixStatus     int
	UTCTime       string
	Latitude      string
	Longitude     string
	MSLAltitude   string
	GroundSpeed   string
	GroundCourse  string
	FixMode       string
	HDOP          string
	PDOP          string
	VDOP          string
	GPSInView     string
	GNSSUsed      string
	GlonassInView string
}

// ParseCGNSINF parses a +CGNSINF (solicited) or +UGNSINF (unsolicited)
// reply. At least 17 comma-separated fields are required; this follows
// the SIMCom SIM868 GNSS note's positional layout.
func ParseCGNSINF(response string, unsolicited bool) (PositionReport, error) {
	header := "+CGNSINF"
	if unsolicited {
		header = "+UGNSINF"
	}
	idx := strings.Index(response, header)
	if idx < 0 {
		return PositionReport{}, fmt.Errorf("no CGNSINF response found in buffer")
	}
	rest := response[idx+len(header):]
	_, body, found := strings.Cut(rest, ": ")
	if !found {
		body = rest
	}
	body = strings.TrimSpace(strings.SplitN(body, "\n", 2)[0])
	if body == "" {
		return PositionReport{}, fmt.Errorf("missing CGNSINF data")
	}
	fields := splitFields(body)
	if len(fields) < 17 {
		return PositionReport{}, fmt.Errorf("missing CGNSINF data")
	}
	return PositionReport{
		RunStatus:     atoiSafe(fields[0]),
		FixStatus:     atoiSafe(fields[1]),
		UTCTime:       fields[2],
		Latitude:      fields[3],
		Longitude:     fields[4],
		MSLAltitude:   fields[5],
		GroundSpeed:   fields[6],
		GroundCourse:  fields[7],
		FixMode:       fields[8],
		HDOP:          fields[10],
		PDOP:          fields[11],
		VDOP:          fields[12],
		GPSInView:     fields[14],
		GNSSUsed:      fields[15],
		GlonassInView: fields[16],
	}, nil
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
