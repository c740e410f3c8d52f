package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

type oggPage struct {
	flags   byte
	granule uint64
	serial  uint32
	seq     uint32
	crc     uint32
	lacing  []byte
	payload []byte
}

// parsePages splits a raw Ogg stream into pages, verifying framing as it
// goes.
func parsePages(t *testing.T, raw []byte) []oggPage {
	t.Helper()
	var pages []oggPage
	for len(raw) > 0 {
		if len(raw) < 27 || !bytes.HasPrefix(raw, []byte("OggS")) {
			t.Fatalf("page %d: bad capture pattern", len(pages))
		}
		segments := int(raw[26])
		if len(raw) < 27+segments {
			t.Fatalf("page %d: truncated lacing table", len(pages))
		}
		lacing := raw[27 : 27+segments]
		payloadLen := 0
		for _, l := range lacing {
			payloadLen += int(l)
		}
		total := 27 + segments + payloadLen
		if len(raw) < total {
			t.Fatalf("page %d: truncated payload", len(pages))
		}
		pages = append(pages, oggPage{
			flags:   raw[5],
			granule: binary.LittleEndian.Uint64(raw[6:]),
			serial:  binary.LittleEndian.Uint32(raw[14:]),
			seq:     binary.LittleEndian.Uint32(raw[18:]),
			crc:     binary.LittleEndian.Uint32(raw[22:]),
			lacing:  append([]byte(nil), lacing...),
			payload: append([]byte(nil), raw[27+segments:total]...),
		})
		raw = raw[total:]
	}
	return pages
}

func TestOggHeaderPages(t *testing.T) {
	t.Parallel()
	w := newOggWriter(42)
	w.WritePacket(make([]byte, 100), FrameSize)
	pages := parsePages(t, w.Finalize())

	if len(pages) != 3 {
		t.Fatalf("page count = %d, want 3 (head, tags, audio)", len(pages))
	}

	head := pages[0]
	if head.flags != oggFlagFirst {
		t.Errorf("head flags = %#x, want beginning-of-stream", head.flags)
	}
	if head.granule != 0 {
		t.Errorf("head granule = %d, want 0", head.granule)
	}
	if !bytes.HasPrefix(head.payload, []byte("OpusHead")) {
		t.Error("first page is not OpusHead")
	}
	if ch := head.payload[9]; ch != 1 {
		t.Errorf("channel count = %d, want 1", ch)
	}
	if rate := binary.LittleEndian.Uint32(head.payload[12:]); rate != SampleRate {
		t.Errorf("input sample rate = %d, want %d", rate, SampleRate)
	}
	if skip := binary.LittleEndian.Uint16(head.payload[10:]); skip != opusPreSkip {
		t.Errorf("pre-skip = %d, want %d", skip, opusPreSkip)
	}

	if !bytes.HasPrefix(pages[1].payload, []byte("OpusTags")) {
		t.Error("second page is not OpusTags")
	}

	for i, p := range pages {
		if p.serial != 42 {
			t.Errorf("page %d serial = %d, want 42", i, p.serial)
		}
		if p.seq != uint32(i) {
			t.Errorf("page %d sequence = %d, want %d", i, p.seq, i)
		}
	}
}

func TestOggGranuleAndEOS(t *testing.T) {
	t.Parallel()
	w := newOggWriter(1)
	const packets = 10
	for i := 0; i < packets; i++ {
		w.WritePacket(make([]byte, 60), FrameSize)
	}
	pages := parsePages(t, w.Finalize())

	last := pages[len(pages)-1]
	if last.flags&oggFlagLast == 0 {
		t.Error("final page missing end-of-stream flag")
	}
	want := uint64(opusPreSkip + packets*FrameSize)
	if last.granule != want {
		t.Errorf("final granule = %d, want %d", last.granule, want)
	}
}

func TestOggLacingValues(t *testing.T) {
	t.Parallel()

	tcases := map[string]struct {
		size int
		want []byte
	}{
		"short":           {100, []byte{100}},
		"exact_255":       {255, []byte{255, 0}},
		"wraps_once":      {300, []byte{255, 45}},
		"exact_multiple":  {510, []byte{255, 255, 0}},
		"empty_is_marker": {0, []byte{0}},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			w := newOggWriter(1)
			w.WritePacket(make([]byte, tc.size), FrameSize)
			pages := parsePages(t, w.Finalize())

			audio := pages[2]
			if !bytes.Equal(audio.lacing, tc.want) {
				t.Errorf("lacing = %v, want %v", audio.lacing, tc.want)
			}
			if len(audio.payload) != tc.size {
				t.Errorf("payload length = %d, want %d", len(audio.payload), tc.size)
			}
		})
	}
}

func TestOggChecksums(t *testing.T) {
	t.Parallel()
	w := newOggWriter(7)
	for i := 0; i < 120; i++ {
		w.WritePacket(bytes.Repeat([]byte{byte(i)}, 80), FrameSize)
	}
	raw := w.Finalize()
	pages := parsePages(t, raw)

	if len(pages) < 4 {
		t.Fatalf("page count = %d, want intermediate flushes", len(pages))
	}

	// Recompute each page's CRC with the checksum field zeroed.
	offset := 0
	for i, p := range pages {
		total := 27 + len(p.lacing) + len(p.payload)
		page := append([]byte(nil), raw[offset:offset+total]...)
		page[22], page[23], page[24], page[25] = 0, 0, 0, 0
		if got := oggCRC(page); got != p.crc {
			t.Errorf("page %d CRC = %#x, want %#x", i, got, p.crc)
		}
		offset += total
	}
}

func TestOggCRCKnownVector(t *testing.T) {
	t.Parallel()
	// CRC-32/MPEG-2 family with zero init and zero final XOR over
	// "123456789" is a published check value.
	if got := oggCRC([]byte("123456789")); got != 0x89a1897f {
		t.Errorf("oggCRC = %#x, want 0x89a1897f", got)
	}
}
