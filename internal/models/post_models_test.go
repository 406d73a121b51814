package models

import "testing"

func TestParseAngle(t *testing.T) {
	cases := []struct {
		in      string
		want    Angle
		wantErr bool
	}{
		{"story", AngleStory, false},
		{"Feedback", AngleFeedback, false},
		{"value", AngleValue, false},
		{"insight", AngleValue, false},
		{"A", AngleStory, false},
		{"b", AngleFeedback, false},
		{"C", AngleValue, false},
		{"", "", true},
		{"rant", "", true},
	}

	for _, tc := range cases {
		got, err := ParseAngle(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}
