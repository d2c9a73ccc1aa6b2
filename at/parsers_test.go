package at_test

import (
	"strings"
	"testing"

	"i4.energy/across/smsgw/at"
)

func TestParseCMGS(t *testing.T) {
	res, err := at.ParseCMGS("\r\n+CMGS: 42\r\n\r\nOK\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReferenceID != 42 {
		t.Errorf("expected reference 42, got %d", res.ReferenceID)
	}

	if _, err := at.ParseCMGS("OK\r\n"); err == nil {
		t.Error("expected error for missing CMGS line")
	}
	if _, err := at.ParseCMGS("+CMGS: abc\r\nOK\r\n"); err == nil {
		t.Error("expected error for non-numeric reference")
	}
}

func TestParseCREG(t *testing.T) {
	res, err := at.ParseCREG("+CREG: 1,7\r\nOK\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Registration != 1 || res.Technology != 7 {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, err := at.ParseCREG("+CREG: 1\r\nOK\r\n"); err == nil {
		t.Error("expected error for missing technology field")
	}
}

func TestParseCSQ(t *testing.T) {
	res, err := at.ParseCSQ("\r\n+CSQ: 17,0\r\nOK\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RSSI != 17 || res.BER != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestParseCOPS(t *testing.T) {
	res, err := at.ParseCOPS(`+COPS: 0,0,"Vodafone"` + "\r\nOK\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Name != "Vodafone" {
		t.Errorf("unexpected operator name: %q", res.Name)
	}

	if _, err := at.ParseCOPS("+COPS: 0,0,Vodafone\r\nOK\r\n"); err == nil {
		t.Error("expected error for unquoted operator name")
	}
}

func TestParseCSPN(t *testing.T) {
	name, err := at.ParseCSPN(`+CSPN: "Vodafone UK",1` + "\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "Vodafone UK" {
		t.Errorf("unexpected name: %q", name)
	}
	if _, err := at.ParseCSPN("+CSPN: Vodafone,1\r\n"); err == nil {
		t.Error("expected error for missing quotes")
	}
}

func TestParseCBC(t *testing.T) {
	res, err := at.ParseCBC("+CBC: 0,85,4150\r\nOK\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != 0 || res.Charge != 85 || res.VoltageV != 4.15 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestParseCGPSStatus(t *testing.T) {
	status, err := at.ParseCGPSStatus("+CGPSSTATUS: Location 2D Fix\r\nOK\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != at.FixStatus2D {
		t.Errorf("expected 2D fix, got %v", status)
	}

	status, err = at.ParseCGPSStatus("+CGPSSTATUS: 3D Fix\r\nOK\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != at.FixStatus3D {
		t.Errorf("expected 3D fix, got %v", status)
	}
}

func TestParseCGNSINF(t *testing.T) {
	fields := strings.Join([]string{
		"1", "1", "20240101120000.000", "51.5074", "-0.1278",
		"10.0", "0.0", "0.0", "1", "", "1.0", "1.0", "1.0", "", "7", "6", "3",
	}, ",")
	report, err := at.ParseCGNSINF("+CGNSINF: "+fields+"\r\nOK\r\n", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.FixStatus != 1 || report.GNSSUsed != "6" {
		t.Errorf("unexpected report: %+v", report)
	}

	if _, err := at.ParseCGNSINF("+CGNSINF: 1,1\r\nOK\r\n", false); err == nil {
		t.Error("expected error for too few fields")
	}

	unsolicited, err := at.ParseCGNSINF("+UGNSINF: "+fields+"\r\n", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unsolicited.Latitude != "51.5074" {
		t.Errorf("unexpected latitude: %s", unsolicited.Latitude)
	}
}
