// Package geo は地理計算を提供する。
package geo

import "math"

// EarthRadiusMeters は地球の平均半径（メートル）。
const EarthRadiusMeters = 6371000.0

// HaversineMeters は2点間の大円距離をメートルで返す。
// 同一点では0を返し、対蹠点でもNaNにならない。
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	sinDPhi := math.Sin(dPhi / 2)
	sinDLambda := math.Sin(dLambda / 2)
	a := sinDPhi*sinDPhi + math.Cos(phi1)*math.Cos(phi2)*sinDLambda*sinDLambda

	// 丸め誤差で[0,1]を外れるとsqrt(1-a)がNaNになる
	a = math.Max(0, math.Min(1, a))

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
