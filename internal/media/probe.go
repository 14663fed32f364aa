package media

import (
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

// Info is a best-effort metadata snapshot for an uploaded audio file.
type Info struct {
	DurationSeconds int64
	Title           string
	Artist          string
	Album           string
}

// Probe inspects the audio stream without consuming it: the reader is rewound
// to the start before returning. Duration is only computed for MP3 input;
// other formats yield zero and the caller falls back to client-supplied data.
func Probe(r io.ReadSeeker, filename string) (Info, error) {
	var info Info

	if meta, err := tag.ReadFrom(r); err == nil {
		info.Title = strings.TrimSpace(meta.Title())
		info.Artist = strings.TrimSpace(meta.Artist())
		info.Album = strings.TrimSpace(meta.Album())
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Info{}, err
	}

	if strings.EqualFold(filepath.Ext(filename), ".mp3") {
		seconds, err := mp3Duration(r)
		if err == nil && seconds > 0 {
			info.DurationSeconds = seconds
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return Info{}, err
		}
	}

	return info, nil
}

func mp3Duration(r io.Reader) (int64, error) {
	decoder := mp3.NewDecoder(r)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A truncated tail still yields a usable duration.
			if total > 0 {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	return int64(total + 0.5), nil
}
