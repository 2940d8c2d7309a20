package audio

import "testing"

func TestParseEncodingInfo(t *testing.T) {
	testCases := []struct {
		name       string
		format     string
		sampleRate int
		wantErr    bool
	}{
		{name: "linear16", format: "linear16", sampleRate: 16000},
		{name: "mulaw", format: "mulaw", sampleRate: 8000},
		{name: "unknown format", format: "opus", sampleRate: 48000, wantErr: true},
		{name: "zero sample rate", format: "linear16", sampleRate: 0, wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := ParseEncodingInfo(testCase.format, testCase.sampleRate)
			if testCase.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateFragmentRequiresWholeSamples(t *testing.T) {
	linear16 := GetDefaultEncodingInfo()
	if err := linear16.ValidateFragment([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected odd linear16 fragment to fail")
	}
	if err := linear16.ValidateFragment([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("expected even linear16 fragment to pass, got %v", err)
	}
	if err := linear16.ValidateFragment(nil); err == nil {
		t.Fatalf("expected empty fragment to fail")
	}

	mulaw := EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}
	if err := mulaw.ValidateFragment([]byte{1, 2, 3}); err != nil {
		t.Fatalf("expected mulaw fragment to pass, got %v", err)
	}
}
