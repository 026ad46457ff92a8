// Package names implements the short/long name codec (component C5): 8.3
// validation and escaping, LFN slot packing/unpacking, checksum computation,
// short-name generation, and case-insensitive comparison.
//
// The 0xE5/0x05 escape handling is grounded on the teacher's dirent byte-0
// handling in drivers/fat/dirent.go. The teacher never implements LFN at
// all (its own comment in dirent.go reads "TODO (dargueta): Implement LFN
// support"), so the LFN slot layout and checksum algorithm here are cross-
// checked against the reference FAT implementation in the retrieval pack's
// soypat-fat package instead. unicode/utf16 is used for the UTF-16 transcode
// because the teacher's golang.org/x/text dependency is for case-folding
// tables, not UTF-16 conversion, so it has no role here.
package names

import (
	"strings"
	"unicode/utf16"

	"github.com/sigurdsen/fatfs/codec"
)

// validShortChars is the §4.5.1 legal character set for 8.3 components,
// beyond uppercase ASCII letters and digits.
const validShortChars = "!#$%&'()-@^_`{}~"

func isValidShortChar(b byte) bool {
	if b >= 'A' && b <= 'Z' {
		return true
	}
	if b >= '0' && b <= '9' {
		return true
	}
	return strings.IndexByte(validShortChars, b) >= 0
}

// IsValidShortName reports whether name (as typed, not yet padded) is a
// legal 8.3 name per §4.5.1.
func IsValidShortName(name string) bool {
	if name == "." || name == ".." {
		return true
	}
	if strings.ContainsAny(name, `\/`) {
		return false
	}
	base := name
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base = name[:i]
		ext = name[i+1:]
	}
	if len(base) < 1 || len(base) > 8 {
		return false
	}
	if len(ext) > 3 {
		return false
	}
	if base[0] == ' ' {
		return false
	}
	for i := 0; i < len(base); i++ {
		if !isValidShortChar(base[i]) {
			return false
		}
	}
	for i := 0; i < len(ext); i++ {
		if !isValidShortChar(ext[i]) {
			return false
		}
	}
	return true
}

// PackShortName converts a validated 8.3 name like "FOO.TXT" into its
// 11-byte space-padded on-disk form.
func PackShortName(name string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	if name == "." {
		out[0] = '.'
		return out
	}
	if name == ".." {
		out[0] = '.'
		out[1] = '.'
		return out
	}
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out
}

// UnpackShortName is the inverse of PackShortName, trimming trailing
// padding and re-inserting the dot.
func UnpackShortName(raw [11]byte) string {
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if base == "." && ext == "" {
		return "."
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// EqualFold reports whether two names are equal under §4.5.3's
// case-insensitive comparison.
func EqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Checksum computes the LFN checksum of an 11-byte packed short name, per
// the standard rolling algorithm: c = ((c>>1)|(c<<7)) + name[i], accumulated
// over all 11 bytes.
func Checksum(shortName [11]byte) uint8 {
	var c uint8
	for _, b := range shortName {
		c = ((c >> 1) | (c << 7)) + b
	}
	return c
}

// SlotsNeeded returns the number of 32-byte slots required to store name:
// 1 for a pure 8.3 name, else ceil(len(lfnChars)/13)+1 for an LFN name.
func SlotsNeeded(name string) int {
	if IsValidShortName(name) && isAllUpper(name) {
		return 1
	}
	units := utf16.Encode([]rune(name))
	return (len(units)+12)/13 + 1
}

func isAllUpper(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] >= 'a' && name[i] <= 'z' {
			return false
		}
	}
	return true
}

// EncodeLFNSlots builds the LFN continuation slots for name, in on-disk
// order (reverse filename order, first slot carrying 0x40 OR'd into its
// ordinal), given the checksum of the paired short-name slot.
func EncodeLFNSlots(name string, checksum uint8) [][]byte {
	units := utf16.Encode([]rune(name))
	total := (len(units) + 12) / 13
	slots := make([][]byte, 0, total)

	for i := 0; i < total; i++ {
		start := i * 13
		end := start + 13
		var chars [13]uint16
		for j := 0; j < 13; j++ {
			idx := start + j
			if idx < len(units) {
				chars[j] = units[idx]
			} else if idx == len(units) {
				chars[j] = 0x0000
			} else {
				chars[j] = 0xFFFF
			}
		}
		ordinal := uint8(i + 1)
		if i == total-1 {
			ordinal |= codec.LFNLastMarker
		}
		slot := codec.LFNSlot{Ordinal: ordinal, Chars: chars, Checksum: checksum}
		slots = append(slots, codec.EncodeLFNSlot(slot))
	}

	// Reverse into on-disk order: the slot with the highest ordinal (last
	// characters, LFNLastMarker set) is written first.
	for i, j := 0, len(slots)-1; i < j; i, j = i+1, j-1 {
		slots[i], slots[j] = slots[j], slots[i]
	}
	return slots
}

// DecodeLFNSequence reassembles a name from a run of raw LFN slots already
// collected in on-disk order (highest ordinal first), validating ordinal
// sequencing and the checksum against shortNameChecksum. ok is false if the
// sequence is malformed and must be treated as orphan garbage per §4.5.3.
func DecodeLFNSequence(rawSlots [][]byte, shortNameChecksum uint8) (name string, ok bool) {
	n := len(rawSlots)
	if n == 0 {
		return "", false
	}
	decoded := make([]codec.LFNSlot, n)
	for i, raw := range rawSlots {
		decoded[i] = codec.DecodeLFNSlot(raw)
	}

	if decoded[0].Ordinal&codec.LFNLastMarker == 0 {
		return "", false
	}
	expectOrdinal := decoded[0].Ordinal &^ codec.LFNLastMarker
	if int(expectOrdinal) != n {
		return "", false
	}
	for i, s := range decoded {
		wantOrdinal := uint8(n - i)
		gotOrdinal := s.Ordinal &^ codec.LFNLastMarker
		if gotOrdinal != wantOrdinal {
			return "", false
		}
		if s.Checksum != shortNameChecksum {
			return "", false
		}
	}

	units := make([]uint16, 0, n*13)
	for i := n - 1; i >= 0; i-- {
		for _, u := range decoded[i].Chars {
			if u == 0x0000 {
				goto done
			}
			units = append(units, u)
		}
	}
done:
	return string(utf16.Decode(units)), true
}

// GenerateShortName derives a unique 8.3 short name for an LFN, per
// §4.5.2: up to the first 6 valid characters of the base (outside-8.3-set
// characters replaced by '_'), followed by "~N" for the smallest N making
// the result unique against exists.
func GenerateShortName(longName string, exists func(shortName [11]byte) bool) [11]byte {
	base := longName
	ext := ""
	if i := strings.LastIndexByte(longName, '.'); i >= 0 {
		base, ext = longName[:i], longName[i+1:]
	}
	baseUpper := sanitize(strings.ToUpper(base))
	extUpper := sanitize(strings.ToUpper(ext))
	if len(extUpper) > 3 {
		extUpper = extUpper[len(extUpper)-3:]
	}

	prefixLen := 6
	if len(baseUpper) < prefixLen {
		prefixLen = len(baseUpper)
	}
	prefix := baseUpper[:prefixLen]

	for n := 1; n < 1_000_000; n++ {
		suffix := "~" + itoa(n)
		candBase := prefix
		maxBase := 8 - len(suffix)
		if len(candBase) > maxBase {
			candBase = candBase[:maxBase]
		}
		candBase += suffix

		var raw [11]byte
		for i := range raw {
			raw[i] = ' '
		}
		copy(raw[0:8], candBase)
		copy(raw[8:11], extUpper)

		if !exists(raw) {
			return raw
		}
	}
	panic("names: exhausted short-name numeric suffixes")
}

// sanitize drops spaces and embedded dots entirely (they never occupy a
// position in the generated base or extension) and replaces any other
// character outside the 8.3 set with '_'.
func sanitize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == ' ' || b == '.' {
			continue
		}
		if isValidShortChar(b) {
			out = append(out, b)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// NeedsLongName reports whether name cannot be represented as a pure
// uppercase 8.3 short name and must be stored with LFN slots.
func NeedsLongName(name string) bool {
	return !(IsValidShortName(name) && isAllUpper(name))
}
