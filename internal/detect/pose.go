package detect

// Keypoint is one skeleton landmark in pixel space. Confidence below
// keypointMinConf marks the landmark as unreliable.
type Keypoint struct {
	X, Y       float64
	Confidence float64
}

const (
	keypointMinConf = 0.3
	// A skeleton compressed into a narrow vertical band is lying down.
	fallenSpreadPx = 40.0
	// Without keypoints, a box wider than tall is the fallback signal.
	fallenAspect = 0.8
)

// ClassifyPose estimates body orientation from skeleton keypoints, falling
// back to the box aspect ratio when too few landmarks are reliable.
func ClassifyPose(b BBox, kps []Keypoint) Pose {
	var minY, maxY float64
	reliable := 0
	for _, kp := range kps {
		if kp.Confidence < keypointMinConf {
			continue
		}
		if reliable == 0 || kp.Y < minY {
			minY = kp.Y
		}
		if reliable == 0 || kp.Y > maxY {
			maxY = kp.Y
		}
		reliable++
	}

	if reliable >= 3 {
		if maxY-minY < fallenSpreadPx {
			return PoseFallen
		}
		return PoseStanding
	}

	return PoseFromBBox(b)
}

// PoseFromBBox is the keypoint-free fallback.
func PoseFromBBox(b BBox) Pose {
	if b.Width() <= 0 {
		return PoseUnknown
	}
	ratio := float64(b.Height()) / float64(b.Width())
	if ratio < fallenAspect {
		return PoseFallen
	}
	return PoseStanding
}
