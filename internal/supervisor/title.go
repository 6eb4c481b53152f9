package supervisor

// ExtractWindowTitle scans a chunk of raw PTY output for an OSC 0 or OSC 2
// "set window title" sequence (ESC ] 0 ; text BEL, or the ST-terminated
// form) and returns the last complete title found, if any. Grounded on the
// OSC-sequence recognition idiom in the pack's PTY output hub, narrowed
// from full ANSI stripping down to just the title-setting sequence the
// runner reports via title_update frames (spec.md §4.4).
func ExtractWindowTitle(data []byte) (string, bool) {
	var last string
	found := false

	i := 0
	for i < len(data) {
		if data[i] != 0x1b || i+1 >= len(data) || data[i+1] != ']' {
			i++
			continue
		}
		i += 2 // skip ESC ]

		// Expect "0;" or "2;"
		if i+1 >= len(data) || (data[i] != '0' && data[i] != '2') || data[i+1] != ';' {
			continue
		}
		i += 2

		start := i
		for i < len(data) {
			if data[i] == 0x07 { // BEL
				last = string(data[start:i])
				found = true
				i++
				break
			}
			if data[i] == 0x1b && i+1 < len(data) && data[i+1] == '\\' { // ST
				last = string(data[start:i])
				found = true
				i += 2
				break
			}
			i++
		}
	}

	return last, found
}
