package models

import (
	"encoding/json"
	"testing"
)

func TestFormatFare(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{120, "₹120"},
		{0, "₹0"},
		{99.5, "₹99.5"},
		{1250.75, "₹1250.75"},
	}
	for _, c := range cases {
		if got := FormatFare(c.in); got != c.want {
			t.Errorf("FormatFare(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRideDecodingFoldsIDsAndDefaultsKind(t *testing.T) {
	var r Ride
	if err := json.Unmarshal([]byte(`{"_id":"r1","fare":120,"status":"accepted"}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.ID != "r1" || r.Kind != KindNormal || r.Fare != 120 {
		t.Fatalf("unexpected ride %+v", r)
	}
	if err := json.Unmarshal([]byte(`{"rideId":"r2","kind":"return"}`), &r); err != nil {
		t.Fatal(err)
	}
	if r.ID != "r2" || r.Kind != KindReturn {
		t.Fatalf("unexpected ride %+v", r)
	}
}

func TestCaptainVerificationDocumentsSkipsMissing(t *testing.T) {
	v := CaptainVerification{AadhaarFront: "a.jpg", ProfilePhoto: "p.jpg"}
	docs := v.Documents()
	if len(docs) != 2 || docs[0] != [2]string{"Aadhaar Front", "a.jpg"} || docs[1][0] != "Profile Photo" {
		t.Fatalf("unexpected documents %v", docs)
	}
}
