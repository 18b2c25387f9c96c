package bitfield

// ConfigStatus is the external SRAM configuration status word captured after
// a config read has been triggered. Fields are packed into a 32-bit word
// using bitfield tags, least significant field first.
type ConfigStatus struct {
	// Loaded indicates the config read sequence ran to completion
	Loaded bool `bitfield:",1"`

	// Override is set while the controller still owns the SRAM pins
	Override bool `bitfield:",1"`

	// PageLength is the page-mode read length, log2 words
	PageLength uint8 `bitfield:",2"`

	// ReadTiming is the read cycle length in sysclk ticks
	ReadTiming uint8 `bitfield:",4"`

	// Register holds the low bits of the SRAM's own configuration register
	Register uint32 `bitfield:",24"`
}

// PackConfigStatus packs a ConfigStatus into its 32-bit register form.
func PackConfigStatus(s ConfigStatus) (uint32, error) {
	packed, err := Pack(s, &Config{NumBits: 32})
	if err != nil {
		return 0, err
	}
	return uint32(packed), nil
}

// UnpackConfigStatus decodes a 32-bit config status register.
func UnpackConfigStatus(word uint32) ConfigStatus {
	var s ConfigStatus
	// Layout is fixed at 32 bits, so Unpack cannot fail here.
	_ = Unpack(uint64(word), &s, &Config{NumBits: 32})
	return s
}
