package audio

import "fmt"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

// EncodingInfo describes the raw, single channel audio carried by fragments.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

// ParseEncodingInfo validates a configured format name and sample rate.
func ParseEncodingInfo(format string, sampleRate int) (EncodingInfo, error) {
	encoding := EncodingInfo{SampleRate: sampleRate, Format: encodingFormat(format)}
	if err := encoding.Validate(); err != nil {
		return EncodingInfo{}, err
	}
	return encoding, nil
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) Validate() error {
	if e.Format.ByteSize() < 0 {
		return fmt.Errorf("unsupported encoding %q", e.Format)
	}
	if e.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", e.SampleRate)
	}
	return nil
}

// ValidateFragment reports whether fragment holds a whole number of
// samples.
func (e EncodingInfo) ValidateFragment(fragment []byte) error {
	if len(fragment) == 0 {
		return fmt.Errorf("empty audio fragment")
	}
	if size := e.Format.ByteSize(); size > 1 && len(fragment)%size != 0 {
		return fmt.Errorf("audio fragment of %d bytes is not a whole number of %d byte samples", len(fragment), size)
	}
	return nil
}

// BytesPerSecond is the data rate of the encoding.
func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.Format.ByteSize()
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
