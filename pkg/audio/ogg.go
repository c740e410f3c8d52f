package audio

import (
	"bytes"
	"encoding/binary"
)

// oggWriter packages Opus packets into an Ogg stream (RFC 3533 framing,
// RFC 7845 Opus mapping) so a recording uploads as a standard .ogg file.
type oggWriter struct {
	buf     bytes.Buffer
	serial  uint32
	pageSeq uint32
	granule uint64

	pending        [][]byte
	pendingSamples uint64
	pendingBytes   int
}

const (
	oggFlagContinued = 0x01
	oggFlagFirst     = 0x02
	oggFlagLast      = 0x04

	// opusPreSkip is the standard encoder lookahead at 48kHz.
	opusPreSkip = 312

	// Flush thresholds keeping pages comfortably under the 255-segment limit.
	oggMaxPendingPackets = 50
	oggMaxPendingBytes   = 32 * 1024
)

// newOggWriter creates a writer and emits the OpusHead/OpusTags header
// pages immediately.
func newOggWriter(serial uint32) *oggWriter {
	w := &oggWriter{serial: serial, granule: opusPreSkip}
	w.writePage([][]byte{opusHead()}, oggFlagFirst, 0)
	w.writePage([][]byte{opusTags()}, 0, 0)
	return w
}

// WritePacket queues one Opus packet covering samples PCM samples.
func (w *oggWriter) WritePacket(packet []byte, samples int) {
	cp := make([]byte, len(packet))
	copy(cp, packet)
	w.pending = append(w.pending, cp)
	w.pendingSamples += uint64(samples)
	w.pendingBytes += len(cp)
	if len(w.pending) >= oggMaxPendingPackets || w.pendingBytes >= oggMaxPendingBytes {
		w.flush(0)
	}
}

// Finalize flushes the last page with the end-of-stream flag and returns
// the complete file contents.
func (w *oggWriter) Finalize() []byte {
	w.flush(oggFlagLast)
	return w.buf.Bytes()
}

func (w *oggWriter) flush(flags byte) {
	if len(w.pending) == 0 && flags == 0 {
		return
	}
	w.granule += w.pendingSamples
	w.writePage(w.pending, flags, w.granule)
	w.pending = nil
	w.pendingSamples = 0
	w.pendingBytes = 0
}

func (w *oggWriter) writePage(packets [][]byte, flags byte, granule uint64) {
	var lacing []byte
	var payload []byte
	for _, p := range packets {
		l := len(p)
		for l >= 255 {
			lacing = append(lacing, 255)
			l -= 255
		}
		lacing = append(lacing, byte(l))
		payload = append(payload, p...)
	}

	header := make([]byte, 27, 27+len(lacing))
	copy(header, "OggS")
	header[4] = 0 // stream structure version
	header[5] = flags
	binary.LittleEndian.PutUint64(header[6:], granule)
	binary.LittleEndian.PutUint32(header[14:], w.serial)
	binary.LittleEndian.PutUint32(header[18:], w.pageSeq)
	// CRC at [22:26] is filled in below.
	header[26] = byte(len(lacing))
	header = append(header, lacing...)

	page := append(header, payload...)
	binary.LittleEndian.PutUint32(page[22:], oggCRC(page))

	w.buf.Write(page)
	w.pageSeq++
}

// opusHead builds the identification header (RFC 7845 §5.1): mono,
// 48kHz input, channel mapping family 0.
func opusHead() []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1 // version
	head[9] = 1 // channel count
	binary.LittleEndian.PutUint16(head[10:], opusPreSkip)
	binary.LittleEndian.PutUint32(head[12:], SampleRate)
	// output gain 0, mapping family 0
	return head
}

// opusTags builds a minimal comment header (RFC 7845 §5.2).
func opusTags() []byte {
	vendor := "mockmate"
	tags := make([]byte, 0, 8+4+len(vendor)+4)
	tags = append(tags, "OpusTags"...)
	tags = binary.LittleEndian.AppendUint32(tags, uint32(len(vendor)))
	tags = append(tags, vendor...)
	tags = binary.LittleEndian.AppendUint32(tags, 0) // no user comments
	return tags
}

// Ogg uses CRC-32 with polynomial 0x04c11db7, zero initial value, no
// reflection, and no final XOR.
var oggCRCTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

func oggCRC(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}
