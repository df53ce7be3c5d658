package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hajimehoshi/go-mp3"
	"github.com/ivannakotyk/SDT/internal/audio"
)

// outputArgs holds per-container encoder flags.
var outputArgs = map[string][]string{
	"mp3":  {"-codec:a", "libmp3lame", "-qscale:a", "2"},
	"ogg":  {"-codec:a", "libvorbis", "-qscale:a", "5"},
	"flac": {"-codec:a", "flac"},
	"opus": {"-codec:a", "libopus", "-b:a", "128k"},
}

// Containers lists the export containers Encode understands.
func Containers() []string {
	return []string{"wav", "mp3", "ogg", "flac", "opus"}
}

// FFmpeg implements Service with native WAV/MP3 decoding and an ffmpeg
// binary for the rest.
type FFmpeg struct {
	path    string
	tempDir string
}

// NewFFmpeg returns a codec using the ffmpeg binary at path and scratch files
// under tempDir.
func NewFFmpeg(path, tempDir string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpeg{path: path, tempDir: tempDir}
}

// Decode implements Service.
func (c *FFmpeg) Decode(ctx context.Context, name string, data []byte) (audio.Buffer, audio.Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		buf, f, err := audio.DecodeWAV(data)
		if err != nil {
			return audio.Buffer{}, audio.Format{}, &Error{Op: "decode wav", Err: err}
		}
		return buf, f, nil
	case ".mp3":
		return decodeMP3(data)
	}
	return c.decodeExternal(ctx, name, data)
}

func decodeMP3(data []byte) (audio.Buffer, audio.Format, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, audio.Format{}, &Error{Op: "decode mp3", Err: err}
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return audio.Buffer{}, audio.Format{}, &Error{Op: "decode mp3", Err: err}
	}
	// go-mp3 always yields 16-bit little-endian stereo
	buf, err := audio.DecodePCM16(pcm, 2)
	if err != nil {
		return audio.Buffer{}, audio.Format{}, &Error{Op: "decode mp3", Err: err}
	}
	return buf, audio.NewFormat(float64(d.SampleRate())), nil
}

// decodeExternal has ffmpeg rewrite the source as 16-bit stereo WAV.
func (c *FFmpeg) decodeExternal(ctx context.Context, name string, data []byte) (audio.Buffer, audio.Format, error) {
	in, err := c.writeTemp(filepath.Ext(name), data)
	if err != nil {
		return audio.Buffer{}, audio.Format{}, &Error{Op: "decode", Err: err}
	}
	defer os.Remove(in)
	out := c.tempPath(".wav")
	defer os.Remove(out)

	if err := c.run(ctx, "decode", "-y", "-i", in, "-acodec", "pcm_s16le", "-ac", "2", out); err != nil {
		return audio.Buffer{}, audio.Format{}, err
	}
	buf, f, err := readWAVFile(out)
	if err != nil {
		return audio.Buffer{}, audio.Format{}, &Error{Op: "decode", Err: err}
	}
	return buf, f, nil
}

// Encode implements Service.
func (c *FFmpeg) Encode(ctx context.Context, buf audio.Buffer, f audio.Format, container string) ([]byte, error) {
	container = strings.ToLower(strings.TrimPrefix(container, "."))
	if container == "wav" {
		data, err := audio.EncodeWAV(buf, f)
		if err != nil {
			return nil, &Error{Op: "encode wav", Err: err}
		}
		return data, nil
	}
	codecArgs, ok := outputArgs[container]
	if !ok {
		return nil, &Error{Op: "encode", Err: fmt.Errorf("unsupported container %q", container)}
	}

	in, err := c.writeWAVTemp(buf, f)
	if err != nil {
		return nil, &Error{Op: "encode " + container, Err: err}
	}
	defer os.Remove(in)
	out := c.tempPath("." + container)
	defer os.Remove(out)

	args := append([]string{"-y", "-i", in}, codecArgs...)
	args = append(args, out)
	if err := c.run(ctx, "encode "+container, args...); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, &Error{Op: "encode " + container, Err: err}
	}
	return data, nil
}

// Resample implements Service.
func (c *FFmpeg) Resample(ctx context.Context, buf audio.Buffer, f audio.Format, tempo float64) (audio.Buffer, error) {
	filter, err := AtempoFilter(tempo)
	if err != nil {
		return audio.Buffer{}, err
	}
	in, err := c.writeWAVTemp(buf, f)
	if err != nil {
		return audio.Buffer{}, &Error{Op: "tempo", Err: err}
	}
	defer os.Remove(in)
	out := c.tempPath(".wav")
	defer os.Remove(out)

	if err := c.run(ctx, "tempo", "-y", "-i", in, "-filter:a", filter, "-acodec", "pcm_s16le", out); err != nil {
		return audio.Buffer{}, err
	}
	res, _, err := readWAVFile(out)
	if err != nil {
		return audio.Buffer{}, &Error{Op: "tempo", Err: err}
	}
	logger.Debugf("Tempo %.3gx: %d -> %d samples", tempo, buf.Len(), res.Len())
	return res, nil
}

// AtempoFilter builds an ffmpeg filter for tempo. atempo accepts factors in
// [0.5, 2], so larger changes are chained as several stages.
func AtempoFilter(tempo float64) (string, error) {
	if tempo <= 0 || math.IsNaN(tempo) || math.IsInf(tempo, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidTempo, tempo)
	}
	var stages []string
	for tempo > 2 {
		stages = append(stages, "atempo=2")
		tempo /= 2
	}
	for tempo < 0.5 {
		stages = append(stages, "atempo=0.5")
		tempo /= 0.5
	}
	stages = append(stages, "atempo="+strconv.FormatFloat(tempo, 'f', -1, 64))
	return strings.Join(stages, ","), nil
}

func (c *FFmpeg) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, c.path, append([]string{"-loglevel", "error"}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &Error{Op: op, Err: err, Output: strings.TrimSpace(string(out))}
	}
	return nil
}

func (c *FFmpeg) tempPath(ext string) string {
	return filepath.Join(c.tempDir, "sdt-"+uuid.NewString()+ext)
}

func (c *FFmpeg) writeTemp(ext string, data []byte) (string, error) {
	path := c.tempPath(ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp: %w", err)
	}
	return path, nil
}

func (c *FFmpeg) writeWAVTemp(buf audio.Buffer, f audio.Format) (string, error) {
	data, err := audio.EncodeWAV(buf, f)
	if err != nil {
		return "", err
	}
	return c.writeTemp(".wav", data)
}

func readWAVFile(path string) (audio.Buffer, audio.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return audio.Buffer{}, audio.Format{}, err
	}
	defer file.Close()
	return audio.ReadWAV(file)
}

var _ Service = (*FFmpeg)(nil)
