// Package labels converts pixel boxes to the normalized detection-label format and back.
package labels

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/menta2k/box-annotator/pkg/types"
)

// ErrInvalidDimensions is returned when an image width or height is not positive.
// Hitting it means boxes were serialized before the image finished loading.
var ErrInvalidDimensions = errors.New("image dimensions must be positive")

// ToNormalized converts pixel boxes to center/size boxes relative to the image
func ToNormalized(boxes []types.PixelBox, imageW, imageH float64) ([]types.NormalizedBox, error) {
	if imageW <= 0 || imageH <= 0 {
		return nil, fmt.Errorf("normalize %gx%g: %w", imageW, imageH, ErrInvalidDimensions)
	}

	out := make([]types.NormalizedBox, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, types.NormalizedBox{
			ClassID: b.ClassID,
			XCenter: (b.X + b.Width/2) / imageW,
			YCenter: (b.Y + b.Height/2) / imageH,
			Width:   b.Width / imageW,
			Height:  b.Height / imageH,
		})
	}
	return out, nil
}

// FromNormalized converts center/size boxes back to pixel boxes
func FromNormalized(boxes []types.NormalizedBox, imageW, imageH float64) ([]types.PixelBox, error) {
	if imageW <= 0 || imageH <= 0 {
		return nil, fmt.Errorf("denormalize %gx%g: %w", imageW, imageH, ErrInvalidDimensions)
	}

	out := make([]types.PixelBox, 0, len(boxes))
	for _, b := range boxes {
		w := b.Width * imageW
		h := b.Height * imageH
		out = append(out, types.PixelBox{
			X:       b.XCenter*imageW - w/2,
			Y:       b.YCenter*imageH - h/2,
			Width:   w,
			Height:  h,
			ClassID: b.ClassID,
		})
	}
	return out, nil
}

// FromRelBox converts a top-left normalized box, as returned by vision models, to center form
func FromRelBox(b types.RelBox, classID int) types.NormalizedBox {
	return types.NormalizedBox{
		ClassID: classID,
		XCenter: b.X + b.W/2,
		YCenter: b.Y + b.H/2,
		Width:   b.W,
		Height:  b.H,
	}
}

// EncodeJSON renders boxes as the JSON array sent in the annotations form field
func EncodeJSON(boxes []types.NormalizedBox) (string, error) {
	if boxes == nil {
		boxes = []types.NormalizedBox{}
	}
	data, err := json.Marshal(boxes)
	if err != nil {
		return "", fmt.Errorf("failed to encode annotations: %w", err)
	}
	return string(data), nil
}

// DecodeJSON parses an annotations form field
func DecodeJSON(raw string) ([]types.NormalizedBox, error) {
	var boxes []types.NormalizedBox
	if err := json.Unmarshal([]byte(raw), &boxes); err != nil {
		return nil, fmt.Errorf("invalid annotations format: %w", err)
	}
	return boxes, nil
}

// WriteYOLO writes one "class x_center y_center width height" line per box
func WriteYOLO(w io.Writer, boxes []types.NormalizedBox) error {
	bw := bufio.NewWriter(w)
	for _, b := range boxes {
		if _, err := fmt.Fprintf(bw, "%d %s %s %s %s\n", b.ClassID,
			formatFloat(b.XCenter), formatFloat(b.YCenter),
			formatFloat(b.Width), formatFloat(b.Height)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// FormatYOLO returns the label file content for a set of boxes
func FormatYOLO(boxes []types.NormalizedBox) string {
	var sb strings.Builder
	_ = WriteYOLO(&sb, boxes)
	return sb.String()
}

// ParseYOLO reads label lines; blank lines are skipped
func ParseYOLO(r io.Reader) ([]types.NormalizedBox, error) {
	var out []types.NormalizedBox
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: expected 5 fields, got %d", line, len(fields))
		}

		classID, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid class id: %w", line, err)
		}
		var vals [4]float64
		for i := range vals {
			vals[i], err = strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid coordinate: %w", line, err)
			}
		}
		out = append(out, types.NormalizedBox{
			ClassID: classID,
			XCenter: vals[0],
			YCenter: vals[1],
			Width:   vals[2],
			Height:  vals[3],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
