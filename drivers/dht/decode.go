package dht

// decodeFrame converts a checksum valid frame into Celsius degrees and
// relative humidity percent.
//
// DHT11 frames carry whole units in single bytes; the fractional bytes are
// always zero. DHT22 frames carry tenths in 16 bit words, temperature in
// sign-magnitude form: the high bit of byte 2 is the sign, the remaining 15
// bits the magnitude. Not two's complement.
func decodeFrame(model Model, frame [frameSize]byte) (temperature, humidity float64) {
	switch model {
	case DHT22:
		raw := int(frame[2]&0x7F)<<8 | int(frame[3])
		temperature = float64(raw) / 10
		if frame[2]&0x80 != 0 {
			temperature = -temperature
		}
		humidity = float64(int(frame[0])<<8|int(frame[1])) / 10
	default:
		temperature = float64(frame[2])
		humidity = float64(frame[0])
	}
	return temperature, humidity
}
