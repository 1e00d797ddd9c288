package tokens

// DefaultThreshold is the exclusive upper bound of the on-device token
// budget. A payload estimated at or above it routes cloud-only.
const DefaultThreshold = 6000

// charsPerToken is a deliberately crude heuristic, not a tokenizer. The
// routing decision only needs the right order of magnitude.
const charsPerToken = 4

type Mode int

const (
	ModeOnDeviceThenCloud Mode = iota
	ModeCloudOnly
)

func (m Mode) String() string {
	switch m {
	case ModeOnDeviceThenCloud:
		return "on-device-then-cloud"
	case ModeCloudOnly:
		return "cloud-only"
	default:
		return "unknown"
	}
}

// Estimate approximates the token cost of text as ceil(len/4). Pure and
// monotonic in length.
func Estimate(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// ChooseMode picks the inference mode for an estimated token count. The
// threshold is an exclusive upper bound for the on-device path: exactly at
// the threshold routes cloud-only.
func ChooseMode(estimatedTokens, threshold int) Mode {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if estimatedTokens < threshold {
		return ModeOnDeviceThenCloud
	}
	return ModeCloudOnly
}
