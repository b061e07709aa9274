// Package cue resolves audio cue names (e.g. "custom_listening_start.pcm")
// to PCM streams ready for the speaker.
//
// Cues live in a directory on an [afero.Fs]. Raw ".pcm" files are streamed
// as-is and must already match the speaker format. ".wav" files are decoded,
// reduced to channel 0 and resampled to the speaker rate on the fly.
package cue

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/ada-assistant/ada/pkg/audio"
)

// ErrNotFound is returned by [Store.Open] for unknown cue names.
var ErrNotFound = errors.New("cue: not found")

// Store opens cues from a directory.
type Store struct {
	fs     afero.Fs
	dir    string
	target audio.Format
}

// NewStore returns a store reading cues under dir on fs. target is the
// speaker's format; decoded cues are converted to it.
func NewStore(fs afero.Fs, dir string, target audio.Format) *Store {
	return &Store{fs: fs, dir: dir, target: target}
}

// Open returns a stream of 16-bit little-endian PCM in the target format.
// The caller must Close it.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	if name == "" || strings.Contains(name, "..") {
		return nil, fmt.Errorf("cue: invalid name %q", name)
	}
	p := path.Join(s.dir, name)
	f, err := s.fs.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("cue: open %s: %w", name, err)
	}

	switch strings.ToLower(path.Ext(name)) {
	case ".wav":
		st, err := newWavStream(f, s.target.SampleRate)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("cue: %s: %w", name, err)
		}
		return st, nil
	default:
		return f, nil
	}
}

// List returns the cue names available in the store, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("cue: list %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".pcm", ".wav":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// wavStream decodes a WAV file chunk by chunk into target-rate mono PCM.
type wavStream struct {
	f       afero.File
	dec     *wav.Decoder
	buf     *goaudio.IntBuffer
	chans   int
	shift   int
	srcRate int
	dstRate int
	pending []byte
	mono    []int16
	eof     bool
}

const wavChunkFrames = 2048

func newWavStream(f afero.File, dstRate int) (*wavStream, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("seek to pcm: %w", err)
	}
	chans := int(dec.NumChans)
	if chans < 1 {
		return nil, fmt.Errorf("invalid channel count %d", chans)
	}
	depth := int(dec.BitDepth)
	if depth != 8 && depth != 16 && depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}
	if dstRate <= 0 {
		dstRate = int(dec.SampleRate)
	}
	return &wavStream{
		f:   f,
		dec: dec,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: chans, SampleRate: int(dec.SampleRate)},
			Data:   make([]int, wavChunkFrames*chans),
		},
		chans:   chans,
		shift:   depth - 16,
		srcRate: int(dec.SampleRate),
		dstRate: dstRate,
	}, nil
}

func (w *wavStream) Read(p []byte) (int, error) {
	for len(w.pending) == 0 {
		if w.eof {
			return 0, io.EOF
		}
		if err := w.decodeChunk(); err != nil {
			return 0, err
		}
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wavStream) decodeChunk() error {
	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("cue: decode wav: %w", err)
	}
	if n == 0 {
		w.eof = true
		return nil
	}
	frames := n / w.chans
	w.mono = w.mono[:0]
	for i := range frames {
		w.mono = append(w.mono, w.toInt16(w.buf.Data[i*w.chans]))
	}
	w.pending = audio.Int16ToBytes(w.pending[:0], audio.Resample(w.mono, w.srcRate, w.dstRate))
	return nil
}

// toInt16 rescales a decoded sample of any supported depth to 16 bits.
// 8-bit WAV is unsigned.
func (w *wavStream) toInt16(v int) int16 {
	switch {
	case w.shift == -8:
		return int16((v - 128) << 8)
	case w.shift > 0:
		return int16(v >> w.shift)
	default:
		return int16(v)
	}
}

func (w *wavStream) Close() error {
	return w.f.Close()
}
