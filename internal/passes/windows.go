package passes

import "time"

// Window is a run of consecutive visible minutes.
type Window struct {
	Start            time.Time `json:"start"`
	Peak             time.Time `json:"peak"`
	End              time.Time `json:"end"` // last visible minute
	Minutes          int       `json:"minutes"`
	PeakElevationDeg float64   `json:"peak_elevation_deg"`
	PeakAzimuthDeg   float64   `json:"peak_azimuth_deg"`
	StartAzimuthDeg  float64   `json:"start_azimuth_deg"`
	EndAzimuthDeg    float64   `json:"end_azimuth_deg"`
	MinRangeM        float64   `json:"min_range_m"`
}

// Windows groups visible samples whose offsets are consecutive into pass
// windows. Samples must be in offset order, as FindVisible returns them;
// samples that are not visible or lack look angles are ignored.
func Windows(samples []Sample) []Window {
	var out []Window
	var cur *Window
	var lastOffset int64

	for _, s := range samples {
		if !s.Visible || s.Look == nil {
			continue
		}
		el := s.Look.ElevationDeg()
		az := s.Look.AzimuthDeg()

		if cur == nil || s.Offset != lastOffset+1 {
			out = append(out, Window{
				Start:            s.Time,
				Peak:             s.Time,
				End:              s.Time,
				PeakElevationDeg: el,
				PeakAzimuthDeg:   az,
				StartAzimuthDeg:  az,
				MinRangeM:        s.Look.Range,
			})
			cur = &out[len(out)-1]
		}

		cur.End = s.Time
		cur.EndAzimuthDeg = az
		cur.Minutes++
		if el > cur.PeakElevationDeg {
			cur.PeakElevationDeg = el
			cur.PeakAzimuthDeg = az
			cur.Peak = s.Time
		}
		if s.Look.Range < cur.MinRangeM {
			cur.MinRangeM = s.Look.Range
		}
		lastOffset = s.Offset
	}
	return out
}

// GroundTrackPoint is a sub-satellite position at one sample time.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`            // meters above the ellipsoid
	Elevation *float64  `json:"elevation,omitempty"` // degrees above the observer's horizon
	Visible   bool      `json:"visible"`
}

// GroundTrack extracts the sub-satellite track from a ModePositions result.
// Samples without a geodetic position are skipped.
func GroundTrack(samples []Sample) []GroundTrackPoint {
	out := make([]GroundTrackPoint, 0, len(samples))
	for _, s := range samples {
		if s.Geodetic == nil {
			continue
		}
		p := GroundTrackPoint{
			Time:      s.Time,
			Latitude:  s.Geodetic.LatDeg,
			Longitude: s.Geodetic.LonDeg,
			Altitude:  s.Geodetic.HeightM,
			Visible:   s.Visible,
		}
		if s.Look != nil {
			el := s.Look.ElevationDeg()
			p.Elevation = &el
		}
		out = append(out, p)
	}
	return out
}
