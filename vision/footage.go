package vision

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"gocv.io/x/gocv"

	"github.com/pvmat/pvmat"
	"github.com/pvmat/pvmat/fault"
)

// Placement is one frame's position on the panorama, as the stitcher wrote
// it to the locations sidecar.
type Placement struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// sidecar mirrors the stitcher's locations JSON document.
type sidecar struct {
	Frames []Placement `json:"frames"`
}

// ParseLocations reads the stitcher's locations sidecar: a JSON document
// with one x/y placement per video frame, in frame order.
func ParseLocations(r io.Reader) ([]image.Point, error) {
	var doc sidecar
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("cannot parse locations sidecar: %w", err)
	}
	if len(doc.Frames) == 0 {
		return nil, fmt.Errorf("locations sidecar lists no frames")
	}

	pts := make([]image.Point, len(doc.Frames))
	for i, p := range doc.Frames {
		pts[i] = image.Pt(p.X, p.Y)
	}
	return pts, nil
}

// LoadFootage assembles Footage from the stitcher's three artifacts: the
// panorama image, the frame locations sidecar, and the source video. Each
// video frame is composited onto a transparent panorama-sized canvas at its
// located position, and the frame rate is probed from the video container.
// Any artifact failing to load is fatal to the session.
func LoadFootage(panoramaPath, locationsPath, videoPath string) (*pvmat.Footage, error) {
	pano, err := loadImageFile(panoramaPath)
	if err != nil {
		return nil, fault.Fatal(fault.Collaborator, "cannot load panorama",
			fault.Context{"path": panoramaPath, "error": err.Error()})
	}

	locs, err := loadLocations(locationsPath)
	if err != nil {
		return nil, fault.Fatal(fault.Collaborator, "cannot load frame locations",
			fault.Context{"path": locationsPath, "error": err.Error()})
	}

	frames, fps, err := dumpFrames(videoPath, pano.Bounds(), locs)
	if err != nil {
		return nil, fault.Fatal(fault.Collaborator, "cannot load video",
			fault.Context{"path": videoPath, "error": err.Error()})
	}

	f := &pvmat.Footage{Panorama: pano, Frames: frames, FPS: fps}
	if fa := f.Validate(); fa != nil {
		return nil, fa
	}
	return f, nil
}

func loadLocations(path string) ([]image.Point, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseLocations(file)
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return img, nil
}

// dumpFrames walks the video start to end, pairing each decoded frame with
// its location. The video must yield exactly one frame per location.
func dumpFrames(path string, panoBounds image.Rectangle, locs []image.Point) ([]pvmat.Frame, float64, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot open video: %w", err)
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		return nil, 0, fmt.Errorf("video reports frame rate %v", fps)
	}

	mat := gocv.NewMat()
	defer mat.Close()

	frames := make([]pvmat.Frame, 0, len(locs))
	for i := 0; ; i++ {
		if ok := capture.Read(&mat); !ok || mat.Empty() {
			break
		}
		if i >= len(locs) {
			return nil, 0, fmt.Errorf("video has more frames than the %d located", len(locs))
		}

		img, err := mat.ToImage()
		if err != nil {
			return nil, 0, fmt.Errorf("cannot convert frame %d: %w", i, err)
		}
		frames = append(frames, pvmat.Frame{
			Image: placeFrame(panoBounds, img, locs[i]),
			Loc:   locs[i],
		})
	}

	if len(frames) != len(locs) {
		return nil, 0, fmt.Errorf("video yielded %d frames for %d locations", len(frames), len(locs))
	}
	return frames, fps, nil
}

// placeFrame composites a raw video frame onto a transparent panorama-sized
// canvas at its location.
func placeFrame(panoBounds image.Rectangle, frame image.Image, loc image.Point) *image.RGBA {
	canvas := image.NewRGBA(panoBounds)
	fb := frame.Bounds()
	draw.Draw(canvas, fb.Sub(fb.Min).Add(loc), frame, fb.Min, draw.Src)
	return canvas
}
