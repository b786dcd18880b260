package audio

// G.711 µ-law companding. The encoder follows the standard bias/clip
// algorithm; 16-bit linear PCM in, 8-bit µ-law out.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// mulawSegments maps (biased magnitude >> 7) to a segment number (0–7).
var mulawSegments = [256]byte{}

func init() {
	for i := range mulawSegments {
		switch {
		case i < 2:
			mulawSegments[i] = 0
		case i < 4:
			mulawSegments[i] = 1
		case i < 8:
			mulawSegments[i] = 2
		case i < 16:
			mulawSegments[i] = 3
		case i < 32:
			mulawSegments[i] = 4
		case i < 64:
			mulawSegments[i] = 5
		case i < 128:
			mulawSegments[i] = 6
		default:
			mulawSegments[i] = 7
		}
	}
}

// EncodeMulawSample compands a single 16-bit linear PCM sample to µ-law.
func EncodeMulawSample(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	seg := mulawSegments[(s>>7)&0xFF]
	uval := sign | (seg << 4) | byte((s>>(seg+3))&0x0F)
	return ^uval
}

// DecodeMulawSample expands a µ-law byte back to 16-bit linear PCM.
func DecodeMulawSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	seg := (u >> 4) & 0x07
	mantissa := u & 0x0F

	s := (int32(mantissa)<<3 + mulawBias) << seg
	s -= mulawBias
	if sign != 0 {
		s = -s
	}
	return int16(s)
}

// PCMToMulaw compands little-endian 16-bit PCM bytes to µ-law bytes,
// halving the payload size.
func PCMToMulaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = EncodeMulawSample(sample)
	}
	return out
}

// MulawToPCM expands µ-law bytes to little-endian 16-bit PCM bytes.
func MulawToPCM(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*2)
	for i, u := range mulaw {
		s := DecodeMulawSample(u)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
